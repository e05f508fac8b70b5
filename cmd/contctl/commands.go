package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var replCommands = []string{
	"/help",
	"/todos",
	"/stats",
	"/add <description>",
	"/done <id or description>",
	"/block <id> <reason>",
	"/scan <file>",
	"/stop",
	"/enable | /disable",
	"/clear",
	"/exit",
}

func printCommands(out io.Writer) {
	fmt.Fprintln(out, "commands:")
	for _, cmd := range replCommands {
		fmt.Fprintf(out, "  %s\n", cmd)
	}
}

// handleCommand 处理 "/" 内建命令；返回 (是否已处理, 是否退出)
// handleCommand dispatches "/" built-ins; returns (handled, shouldExit)
func (a *app) handleCommand(input string, out io.Writer) (bool, bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(input, "/"))
	parts := strings.SplitN(rest, " ", 2)
	command := strings.ToLower(strings.TrimSpace(parts[0]))
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	switch command {
	case "help":
		printCommands(out)
	case "todos":
		renderTodos(out, a.ledger.GetTodos(a.sessionID))
	case "stats":
		stats := a.ledger.GetStats(a.sessionID)
		fmt.Fprintf(out, "enabled=%v iterations=%d total=%d pending=%d in_progress=%d completed=%d blocked=%d\n",
			stats.Enabled, stats.Iterations, stats.Total, stats.Pending, stats.InProgress, stats.Completed, stats.Blocked)
	case "add":
		if args == "" {
			fmt.Fprintln(out, "usage: /add <description>")
			break
		}
		item := a.ledger.AddTodo(a.sessionID, args)
		fmt.Fprintf(out, "added %s: %s\n", item.ID, item.Description)
	case "done":
		if args == "" {
			fmt.Fprintln(out, "usage: /done <id or description>")
			break
		}
		if strings.HasPrefix(args, "todo-") {
			a.ledger.MarkCompleted(a.sessionID, args)
			fmt.Fprintf(out, "completed %s\n", args)
			break
		}
		n := a.ledger.MarkCompletedByDescription(a.sessionID, args)
		fmt.Fprintf(out, "completed %d task(s) matching %q\n", n, args)
	case "block":
		fields := strings.SplitN(args, " ", 2)
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: /block <id> <reason>")
			break
		}
		a.ledger.MarkBlocked(a.sessionID, fields[0], fields[1])
		fmt.Fprintf(out, "blocked %s\n", fields[0])
	case "scan":
		if args == "" {
			fmt.Fprintln(out, "usage: /scan <file>")
			break
		}
		data, err := os.ReadFile(args)
		if err != nil {
			fmt.Fprintf(out, "read %s failed: %v\n", args, err)
			break
		}
		found := a.ledger.ExtractFromCode(a.sessionID, string(data))
		fmt.Fprintf(out, "found %d TODO marker(s)\n", len(found))
	case "stop":
		stop := a.ledger.CheckCanStop(a.sessionID)
		if stop.CanStop {
			fmt.Fprintf(out, "session may stop: %s\n", stop.Reason)
		} else {
			renderContinuation(out, stop, a.ledger.GenerateContinuationPrompt(a.sessionID))
		}
	case "enable":
		a.ledger.Enable(a.sessionID)
		fmt.Fprintln(out, "task tracking enabled")
	case "disable":
		a.ledger.Disable(a.sessionID)
		fmt.Fprintln(out, "task tracking disabled")
	case "clear":
		a.ledger.Clear(a.sessionID)
		a.messages = nil
		fmt.Fprintln(out, "session cleared")
	case "exit", "quit":
		return true, true
	default:
		fmt.Fprintf(out, "unknown command %q, try /help\n", command)
	}
	return true, false
}
