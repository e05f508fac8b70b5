package budget

import (
	"context"
	"fmt"
	"strings"

	"contctl/internal/chat"
)

// CompactResult 一次压缩的结果
// CompactResult reports one compaction pass
type CompactResult struct {
	Success         bool   `json:"success"`
	OriginalTokens  int    `json:"original_tokens"`
	CompactedTokens int    `json:"compacted_tokens"`
	Summary         string `json:"summary"`
}

const summaryPromptTemplate = `Summarize the earlier part of this agent conversation as terse bullet points.
Preserve: the current objective, files or resources touched, key decisions, and pending issues.
Output plain text bullets only.

%s`

const (
	summaryMaxOutputTokens          = 500
	emergencySummaryMaxOutputTokens = 200
	summaryInputMaxRunes            = 6000
)

// Compact 压缩消息历史：保留最近 keep 条，旧消息换成一条摘要
// Compact summarizes everything older than the keep-count. It never mutates
// the caller's transcript; the host must splice CreateCompactedMessages back
// in explicitly.
func (m *Monitor) Compact(ctx context.Context, messages []chat.Message, isEmergency bool) CompactResult {
	m.mu.RLock()
	keep := m.settings.KeepRecent
	if isEmergency {
		keep = m.settings.EmergencyKeepRecent
	}
	summ := m.summ
	m.mu.RUnlock()

	if len(messages) <= keep {
		// 没有可压缩的内容，按成功的 no-op 返回
		// Nothing to compact; report a successful no-op
		return CompactResult{Success: true}
	}

	older := messages[:len(messages)-keep]

	summary := ""
	if summ != nil {
		maxOut := summaryMaxOutputTokens
		if isEmergency {
			maxOut = emergencySummaryMaxOutputTokens
		}
		if s, err := summ.Generate(ctx, summaryPrompt(older), maxOut); err == nil {
			summary = strings.TrimSpace(s)
		}
	}
	if summary == "" {
		summary = localSummary(older)
	}

	compacted := CreateCompactedMessages(messages, summary, keep)
	return CompactResult{
		Success:         true,
		OriginalTokens:  EstimateTokens(messages),
		CompactedTokens: EstimateTokens(compacted),
		Summary:         summary,
	}
}

// CreateCompactedMessages 构造压缩后的消息列表：一条合成 system 摘要 + 最近 keep 条原文
// CreateCompactedMessages builds the new transcript: one synthetic system
// message carrying the summary, then the most recent keep originals verbatim.
func CreateCompactedMessages(original []chat.Message, summary string, keep int) []chat.Message {
	if keep < 0 {
		keep = 0
	}
	if keep > len(original) {
		keep = len(original)
	}
	tail := original[len(original)-keep:]

	out := make([]chat.Message, 0, keep+1)
	out = append(out, chat.Message{
		Role:    "system",
		Content: "[CONTEXT_SUMMARY]\n" + summary,
	})
	out = append(out, tail...)
	return out
}

// EstimateStringTokens 启发式估算：ceil(字符数/4)
// EstimateStringTokens is the pre-flight heuristic: ceil(runes/4)
func EstimateStringTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// EstimateTokens 估算消息列表的 token 总量；永远只是估计
// EstimateTokens estimates a message list's token total; never exact
func EstimateTokens(messages []chat.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateStringTokens(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += EstimateStringTokens(tc.Function.Name)
			total += EstimateStringTokens(tc.Function.Arguments)
		}
	}
	return total
}

// summaryPrompt 从旧消息构建摘要输入，限制长度
// summaryPrompt builds the bounded summarization input from older messages
func summaryPrompt(older []chat.Message) string {
	var b strings.Builder
	for _, msg := range older {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(short(content, 400))
		b.WriteString("\n")
	}
	body := b.String()
	if r := []rune(body); len(r) > summaryInputMaxRunes {
		body = string(r[:summaryInputMaxRunes]) + "..."
	}
	return fmt.Sprintf(summaryPromptTemplate, body)
}

// localSummary 确定性的本地回退摘要，取最后一条用户消息
// localSummary is the deterministic fallback built from the last user message;
// it never blocks on LLM availability.
func localSummary(older []chat.Message) string {
	lastUser := ""
	for i := len(older) - 1; i >= 0; i-- {
		if older[i].Role == "user" && strings.TrimSpace(older[i].Content) != "" {
			lastUser = strings.TrimSpace(older[i].Content)
			break
		}
	}
	if lastUser == "" {
		return fmt.Sprintf("- earlier conversation (%d messages) compacted\n- continue the current task", len(older))
	}
	return fmt.Sprintf("- earlier conversation (%d messages) compacted\n- latest user request: %s",
		len(older), short(lastUser, 200))
}

func short(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "..."
}
