package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// todoCommentPattern 匹配单行 TODO 注释；模式固定，不会编译失败
// todoCommentPattern matches single-line TODO markers; the pattern is fixed
var todoCommentPattern = regexp.MustCompile(`(?m)TODO[:：]\s*(.+)$`)

const extractPromptTemplate = `Extract concrete actionable tasks from the requirement below.
Respond with a JSON array only, each element {"description": "..."}.
Return [] if the requirement contains no actionable task.

Requirement:
%s`

const extractMaxOutputTokens = 500

// ExtractFromRequirement 用 summarizer 从需求文本抽取任务；软失败
// ExtractFromRequirement extracts tasks from requirement text via the
// summarizer. Fails soft: a missing summarizer, an errored call, or
// unparseable output all yield an empty list and add nothing.
func (l *Ledger) ExtractFromRequirement(ctx context.Context, sessionID, text string) []TodoItem {
	l.mu.RLock()
	enabled := l.cfg.EnableAutoExtract
	summ := l.summ
	l.mu.RUnlock()

	if !enabled || summ == nil || strings.TrimSpace(text) == "" {
		return nil
	}

	raw, err := summ.Generate(ctx, extractPrompt(text), extractMaxOutputTokens)
	if err != nil {
		return nil
	}
	descriptions := parseExtractedTasks(raw)
	if len(descriptions) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TodoItem, 0, len(descriptions))
	for _, desc := range descriptions {
		item := l.appendLocked(sessionID, desc, SourceUserRequirement)
		out = append(out, *item)
	}
	l.persistLocked(sessionID)
	return out
}

// ExtractFromCode 同步扫描源码中的单行 TODO 标记；无 LLM 调用
// ExtractFromCode is a pure synchronous scan for single-line TODO markers;
// no LLM call is involved.
func (l *Ledger) ExtractFromCode(sessionID, sourceText string) []TodoItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.EnableCodeCommentScan || strings.TrimSpace(sourceText) == "" {
		return nil
	}

	var out []TodoItem
	for _, match := range todoCommentPattern.FindAllStringSubmatch(sourceText, -1) {
		desc := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(match[1]), "*/"))
		if desc == "" {
			continue
		}
		item := l.appendLocked(sessionID, desc, SourceCodeComment)
		out = append(out, *item)
	}
	if len(out) > 0 {
		l.persistLocked(sessionID)
	}
	return out
}

func extractPrompt(text string) string {
	trimmed := strings.TrimSpace(text)
	// 限制需求长度，避免超出 summarizer 输入预算
	// Bound requirement length so the prompt stays within the summarizer budget
	r := []rune(trimmed)
	if len(r) > 2000 {
		trimmed = string(r[:2000]) + "..."
	}
	return fmt.Sprintf(extractPromptTemplate, trimmed)
}

// parseExtractedTasks 解析 summarizer 输出的 JSON 数组；容忍 ``` 围栏
// parseExtractedTasks parses the summarizer's JSON array output, tolerating
// markdown code fences around it.
func parseExtractedTasks(raw string) []string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.IndexByte(cleaned, '[')
	end := strings.LastIndexByte(cleaned, ']')
	if start < 0 || end <= start {
		return nil
	}

	var tasks []struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &tasks); err != nil {
		return nil
	}

	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		desc := strings.TrimSpace(task.Description)
		if desc == "" {
			continue
		}
		out = append(out, desc)
	}
	return out
}
