package budget

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"contctl/internal/chat"
	"contctl/internal/summarizer"
)

func makeMessages(n int) []chat.Message {
	out := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		role := "assistant"
		if i%2 == 0 {
			role = "user"
		}
		out = append(out, chat.Message{Role: role, Content: fmt.Sprintf("message %d about the refactor", i)})
	}
	return out
}

func TestCompact_NoopUnderKeepCount(t *testing.T) {
	m := New(DefaultThresholds(), DefaultCompactSettings(), nil)
	messages := makeMessages(4)

	result := m.Compact(context.Background(), messages, false)
	if !result.Success {
		t.Fatal("no-op compaction should still report success")
	}
	if result.OriginalTokens != 0 || result.CompactedTokens != 0 {
		t.Fatalf("no-op compaction should report 0/0 tokens: %+v", result)
	}
	if len(messages) != 4 {
		t.Fatal("caller's list must be untouched")
	}
}

func TestCompact_WithSummarizer(t *testing.T) {
	stub := summarizer.Func(func(_ context.Context, prompt string, maxOut int) (string, error) {
		if !strings.Contains(prompt, "message 0") {
			t.Fatalf("prompt should carry older messages: %q", prompt)
		}
		if maxOut != 500 {
			t.Fatalf("normal compaction should use the full output budget, got %d", maxOut)
		}
		return "- refactor in progress", nil
	})
	m := New(DefaultThresholds(), DefaultCompactSettings(), stub)

	result := m.Compact(context.Background(), makeMessages(20), false)
	if !result.Success {
		t.Fatal("compaction should succeed")
	}
	if result.Summary != "- refactor in progress" {
		t.Fatalf("summary = %q", result.Summary)
	}
	if result.CompactedTokens >= result.OriginalTokens {
		t.Fatalf("compaction should shrink the estimate: %d -> %d",
			result.OriginalTokens, result.CompactedTokens)
	}
}

func TestCompact_EmergencyUsesSmallerBudget(t *testing.T) {
	var sawMaxOut int
	stub := summarizer.Func(func(_ context.Context, _ string, maxOut int) (string, error) {
		sawMaxOut = maxOut
		return "- terse", nil
	})
	m := New(DefaultThresholds(), DefaultCompactSettings(), stub)

	m.Compact(context.Background(), makeMessages(20), true)
	if sawMaxOut != emergencySummaryMaxOutputTokens {
		t.Fatalf("emergency compaction should bound output to %d, got %d",
			emergencySummaryMaxOutputTokens, sawMaxOut)
	}
}

func TestCompact_FallsBackToLocalSummary(t *testing.T) {
	failing := summarizer.Func(func(_ context.Context, _ string, _ int) (string, error) {
		return "", fmt.Errorf("timeout")
	})
	m := New(DefaultThresholds(), DefaultCompactSettings(), failing)

	messages := makeMessages(20)
	result := m.Compact(context.Background(), messages, false)
	if !result.Success {
		t.Fatal("fallback compaction should succeed")
	}
	// 本地摘要取最后一条被压缩的用户消息
	// The local summary carries the last user message of the compacted prefix
	if !strings.Contains(result.Summary, "message 12") {
		t.Fatalf("local summary should quote the latest compacted user request: %q", result.Summary)
	}
}

func TestCompact_NoSummarizer(t *testing.T) {
	m := New(DefaultThresholds(), DefaultCompactSettings(), nil)
	result := m.Compact(context.Background(), makeMessages(10), false)
	if !result.Success || result.Summary == "" {
		t.Fatalf("absent summarizer must still produce a local summary: %+v", result)
	}
}

func TestCreateCompactedMessages(t *testing.T) {
	original := makeMessages(10)
	out := CreateCompactedMessages(original, "the summary", 3)

	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	if out[0].Role != "system" || !strings.Contains(out[0].Content, "the summary") {
		t.Fatalf("first message should be the synthetic system summary: %+v", out[0])
	}
	for i := 0; i < 3; i++ {
		if out[i+1].Role != original[7+i].Role || out[i+1].Content != original[7+i].Content {
			t.Fatalf("kept message %d should be verbatim", i)
		}
	}
}

func TestEstimateStringTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}
	for _, tt := range tests {
		if got := EstimateStringTokens(tt.text); got != tt.want {
			t.Fatalf("EstimateStringTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateTokens_IncludesToolCalls(t *testing.T) {
	messages := []chat.Message{
		{Role: "assistant", ToolCalls: []chat.ToolCall{{
			Function: chat.ToolCallFunction{Name: "read", Arguments: `{"path":"main.go"}`},
		}}},
	}
	if got := EstimateTokens(messages); got <= 0 {
		t.Fatalf("tool call payloads should count, got %d", got)
	}
}
