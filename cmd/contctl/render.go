package main

import (
	"fmt"
	"io"

	"contctl/internal/budget"
	"contctl/internal/ledger"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dangerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	continueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
)

func renderBanner(out io.Writer, banner string) {
	if banner == "" {
		return
	}
	fmt.Fprintln(out, bannerStyle.Render(banner))
}

func renderStatus(out io.Writer, check budget.CheckResult) {
	label := fmt.Sprintf("[%s] context %d/%d (%.0f%%)",
		budget.StatusLabel(check.Status), check.UsedTokens, check.MaxTokens, check.Usage*100)
	switch check.Status {
	case budget.StatusNormal:
		fmt.Fprintln(out, mutedStyle.Render(label))
	case budget.StatusWarning:
		fmt.Fprintln(out, warnStyle.Render(label))
	default:
		fmt.Fprintln(out, dangerStyle.Render(label))
	}
}

func renderContinuation(out io.Writer, stop ledger.StopCheck, prompt string) {
	fmt.Fprintln(out, continueStyle.Render("continue: "+stop.Reason))
	if prompt != "" {
		fmt.Fprintln(out, mutedStyle.Render(prompt))
	}
}

func renderTodos(out io.Writer, items []ledger.TodoItem) {
	if len(items) == 0 {
		fmt.Fprintln(out, "no todos")
		return
	}
	for _, item := range items {
		line := fmt.Sprintf("%s %s %s (%s)", todoStatusMarker(item.Status), item.ID, item.Description, item.Source)
		if item.Status == ledger.StatusBlocked && item.BlockReason != "" {
			line += " blocked: " + item.BlockReason
		}
		if item.Status == ledger.StatusCompleted {
			fmt.Fprintln(out, successStyle.Render(line))
		} else {
			fmt.Fprintln(out, line)
		}
	}
}

func todoStatusMarker(status ledger.Status) string {
	switch status {
	case ledger.StatusCompleted:
		return "[x]"
	case ledger.StatusInProgress:
		return "[~]"
	case ledger.StatusBlocked:
		return "[!]"
	default:
		return "[ ]"
	}
}
