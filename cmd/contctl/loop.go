package main

import (
	"context"
	"fmt"
	"io"

	"contctl/internal/budget"
	"contctl/internal/chat"
)

// runTurn 执行一轮续作控制循环：检测关键词 -> 预算检查 -> 账本 stop-check
// runTurn runs one continuation-control iteration around a user turn:
// keyword detection, budget check (with compaction when crossed), then the
// ledger stop-check that decides whether the turn may end the session.
func (a *app) runTurn(input string, out io.Writer) {
	ctx := context.Background()

	detection := a.detector.Detect(input)
	if detection.Detected {
		renderBanner(out, a.detector.GenerateActivationMessage(detection))
		if detection.Triggers != nil {
			a.triggers = *detection.Triggers
			if a.triggers.EnableTodoContinuation {
				a.ledger.Enable(a.sessionID)
			}
		}
	}
	prompt := detection.CleanedPrompt

	if extracted := a.ledger.ExtractFromRequirement(ctx, a.sessionID, prompt); len(extracted) > 0 {
		fmt.Fprintf(out, "tracked %d task(s) from this request\n", len(extracted))
	}

	a.messages = append(a.messages, chat.Message{Role: "user", Content: prompt})

	used := a.tokenizer.Count(a.messages)
	check := a.monitor.Check(used, a.cfg.Budget.ContextTokenLimit)
	renderStatus(out, check)

	switch check.Action {
	case budget.ActionWarn:
		fmt.Fprintln(out, a.monitor.GenerateWarningPrompt(check.Usage))
	case budget.ActionCompact, budget.ActionEmergencyCompact:
		a.compact(ctx, out, check.Action == budget.ActionEmergencyCompact)
	}

	// 真实部署里这里是模型调用；演示循环只回显确认
	// A real deployment calls the model here; the demo loop just acknowledges
	a.messages = append(a.messages, chat.Message{Role: "assistant", Content: "Working on: " + prompt})

	stop := a.ledger.CheckCanStop(a.sessionID)
	if !stop.CanStop {
		renderContinuation(out, stop, a.ledger.GenerateContinuationPrompt(a.sessionID))
	}
}

// compact 执行压缩并把结果拼回本地 transcript
// compact runs a compaction pass and splices the result into the transcript
func (a *app) compact(ctx context.Context, out io.Writer, emergency bool) {
	result := a.monitor.Compact(ctx, a.messages, emergency)
	if !result.Success || result.Summary == "" {
		return
	}
	keep := a.cfg.Budget.KeepRecent
	if emergency {
		keep = a.cfg.Budget.EmergencyKeepRecent
	}
	a.messages = budget.CreateCompactedMessages(a.messages, result.Summary, keep)
	fmt.Fprintf(out, "compacted history: ~%d -> ~%d tokens\n", result.OriginalTokens, result.CompactedTokens)
}
