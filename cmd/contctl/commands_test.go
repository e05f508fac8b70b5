package main

import (
	"bytes"
	"strings"
	"testing"

	"contctl/internal/keyword"
	"contctl/internal/ledger"
)

func newTestApp() *app {
	return &app{
		ledger:    ledger.New(ledger.Config{MaxIterations: 5, EnableCodeCommentScan: true}, nil, nil),
		detector:  keyword.New(),
		sessionID: "sess-test",
	}
}

func TestHandleCommand_AddAndDone(t *testing.T) {
	a := newTestApp()
	a.ledger.Enable(a.sessionID)
	var out bytes.Buffer

	handled, exit := a.handleCommand("/add write integration tests", &out)
	if !handled || exit {
		t.Fatalf("handled=%v exit=%v", handled, exit)
	}
	todos := a.ledger.GetTodos(a.sessionID)
	if len(todos) != 1 || todos[0].Description != "write integration tests" {
		t.Fatalf("unexpected todos: %+v", todos)
	}

	out.Reset()
	a.handleCommand("/done "+todos[0].ID, &out)
	if got := a.ledger.GetTodos(a.sessionID)[0].Status; got != ledger.StatusCompleted {
		t.Fatalf("status = %q after /done", got)
	}
}

func TestHandleCommand_DoneByDescription(t *testing.T) {
	a := newTestApp()
	a.ledger.Enable(a.sessionID)
	a.ledger.AddTodo(a.sessionID, "refactor the parser")
	var out bytes.Buffer

	a.handleCommand("/done parser", &out)
	if !strings.Contains(out.String(), "completed 1 task(s)") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestHandleCommand_ExitAndUnknown(t *testing.T) {
	a := newTestApp()
	var out bytes.Buffer

	if _, exit := a.handleCommand("/exit", &out); !exit {
		t.Fatal("/exit should request shutdown")
	}
	if _, exit := a.handleCommand("/quit", &out); !exit {
		t.Fatal("/quit should request shutdown")
	}

	out.Reset()
	handled, exit := a.handleCommand("/bogus", &out)
	if !handled || exit {
		t.Fatalf("handled=%v exit=%v", handled, exit)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestHandleCommand_StopReportsOutstanding(t *testing.T) {
	a := newTestApp()
	a.ledger.Enable(a.sessionID)
	a.ledger.AddTodo(a.sessionID, "ship release notes")
	var out bytes.Buffer

	a.handleCommand("/stop", &out)
	if !strings.Contains(out.String(), "outstanding") {
		t.Fatalf("expected continuation output, got %q", out.String())
	}
}

func TestTodoStatusMarker(t *testing.T) {
	cases := []struct {
		status ledger.Status
		want   string
	}{
		{ledger.StatusPending, "[ ]"},
		{ledger.StatusInProgress, "[~]"},
		{ledger.StatusCompleted, "[x]"},
		{ledger.StatusBlocked, "[!]"},
	}
	for _, tc := range cases {
		if got := todoStatusMarker(tc.status); got != tc.want {
			t.Fatalf("marker(%s) = %q, want %q", tc.status, got, tc.want)
		}
	}
}
