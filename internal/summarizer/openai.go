package summarizer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig OpenAI 兼容端点配置
// OpenAIConfig configures an OpenAI-compatible endpoint
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	TimeoutMS int
}

// OpenAISummarizer 基于 go-openai SDK 的 Summarizer 实现
// OpenAISummarizer implements Summarizer using the go-openai SDK
type OpenAISummarizer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI 创建 SDK-backed summarizer
// NewOpenAI creates the SDK-backed summarizer
func NewOpenAI(cfg OpenAIConfig) *OpenAISummarizer {
	config := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	timeout := 30 * time.Second
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	config.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAISummarizer{
		client:  openai.NewClientWithConfig(config),
		model:   strings.TrimSpace(cfg.Model),
		timeout: timeout,
	}
}

func (s *OpenAISummarizer) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("summarizer: empty prompt")
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = 500
	}

	// 每次调用都带自己的超时；上游取消时按 summarizer 缺席降级
	// Every call carries its own timeout; on cancellation callers degrade as if absent
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarizer generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarizer generate: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
