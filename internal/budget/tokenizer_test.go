package budget

import (
	"testing"

	"contctl/internal/chat"
)

func TestTokenizer_Heuristic(t *testing.T) {
	// tiktoken 不可用时启发式必须可用
	// The heuristic must work even without tiktoken's BPE cache
	tok := &Tokenizer{fallback: true, encodingName: "cl100k_base"}

	if count := tok.CountText("Hello world"); count <= 0 {
		t.Fatalf("heuristic CountText should return > 0, got %d", count)
	}
	if count := tok.CountText("你好世界"); count <= 0 {
		t.Fatalf("heuristic CountText for CJK should return > 0, got %d", count)
	}
}

func TestTokenizer_CJKWeighsHeavier(t *testing.T) {
	tok := &Tokenizer{fallback: true}
	ascii := tok.CountText("abcd")
	cjk := tok.CountText("全力以赴")
	if cjk <= ascii {
		t.Fatalf("CJK should estimate heavier than ASCII of equal length: %d vs %d", cjk, ascii)
	}
}

func TestTokenizer_CountMessages(t *testing.T) {
	tok := &Tokenizer{fallback: true}
	messages := []chat.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there", ToolCalls: []chat.ToolCall{{
			Function: chat.ToolCallFunction{Name: "read", Arguments: `{"path":"x"}`},
		}}},
	}
	if count := tok.Count(messages); count <= 8 {
		t.Fatalf("Count should include per-message overhead, got %d", count)
	}
}

func TestTokenizer_EmptyText(t *testing.T) {
	tok := &Tokenizer{fallback: true}
	if tok.CountText("") != 0 {
		t.Fatal("empty text should count 0")
	}
}

func TestModelToEncoding(t *testing.T) {
	tests := []struct {
		model    string
		expected string
	}{
		{"gpt-4", "cl100k_base"},
		{"gpt-4o-mini", "o200k_base"},
		{"o1-preview", "o200k_base"},
		{"o3-mini", "o200k_base"},
		{"", "cl100k_base"},
		{"unknown-model", "cl100k_base"},
	}
	for _, tt := range tests {
		if got := modelToEncoding(tt.model); got != tt.expected {
			t.Fatalf("modelToEncoding(%q) = %q, want %q", tt.model, got, tt.expected)
		}
	}
}
