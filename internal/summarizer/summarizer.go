package summarizer

import "context"

// Summarizer 可选的摘要能力接口；nil 是合法配置
// Summarizer is the optional summarization capability; a nil Summarizer is a
// fully supported configuration and every caller must degrade without it.
type Summarizer interface {
	// Generate 发送提示词并返回文本；maxOutputTokens 限制输出长度
	// Generate sends a prompt and returns text; maxOutputTokens bounds the output
	Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
}

// Func 将普通函数适配为 Summarizer，主要用于测试
// Func adapts a plain function to Summarizer, mainly for tests
type Func func(ctx context.Context, prompt string, maxOutputTokens int) (string, error)

func (f Func) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	return f(ctx, prompt, maxOutputTokens)
}
