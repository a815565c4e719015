// Package openai implements the llm.Provider interface for OpenAI's GPT
// models. It provides blocking completions with automatic retry for
// transient failures, and exposes OpenAI's moderation endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/corpus/internal/llm"
)

// Provider implements llm.Provider and llm.Moderator using OpenAI.
//
// Provider is safe for concurrent use; each call creates an independent
// request.
type Provider struct {
	client *openai.Client
	model  string

	// timeout bounds each attempt, not the whole retry loop.
	timeout time.Duration

	// maxRetries applies to retryable errors like rate limits (429) and
	// server errors (5xx).
	maxRetries int

	// retryDelay is the base delay; actual delay is retryDelay * attempt.
	retryDelay time.Duration
}

var (
	_ llm.Provider  = (*Provider)(nil)
	_ llm.Moderator = (*Provider)(nil)
)

// Config contains configuration for the OpenAI provider.
type Config struct {
	APIKey  string
	BaseURL string // Optional custom base URL

	// Model is the chat completion model.
	// Default: gpt-4o-mini
	Model string

	// Timeout bounds each API request.
	// Default: 60s
	Timeout time.Duration

	// MaxRetries is the number of attempts for retryable failures.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base backoff delay.
	// Default: 1s
	RetryDelay time.Duration
}

// New creates a new OpenAI completion provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:     openai.NewClientWithConfig(config),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Name returns the provider identifier used for routing and logging.
func (p *Provider) Name() string {
	return "openai"
}

// Model returns the configured model identifier.
func (p *Provider) Model() string {
	return p.model
}

// Complete performs a blocking chat completion with linear-backoff retry.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertMessages(req),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}

	var resp openai.ChatCompletionResponse
	var lastErr error

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		resp, lastErr = p.client.CreateChatCompletion(attemptCtx, chatReq)
		cancel()
		if lastErr == nil {
			break
		}

		if !isRetryableError(lastErr) {
			return nil, fmt.Errorf("completion failed: %w", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Moderate screens text with OpenAI's moderation endpoint.
func (p *Provider) Moderate(ctx context.Context, text string) (*llm.ModerationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: openai.ModerationTextLatest,
	})
	if err != nil {
		return nil, fmt.Errorf("moderation failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, errors.New("no moderation results returned")
	}

	r := resp.Results[0]
	result := &llm.ModerationResult{Flagged: r.Flagged}

	checks := []struct {
		name    string
		flagged bool
		score   float64
	}{
		{"hate", r.Categories.Hate, float64(r.CategoryScores.Hate)},
		{"hate/threatening", r.Categories.HateThreatening, float64(r.CategoryScores.HateThreatening)},
		{"harassment", r.Categories.Harassment, float64(r.CategoryScores.Harassment)},
		{"harassment/threatening", r.Categories.HarassmentThreatening, float64(r.CategoryScores.HarassmentThreatening)},
		{"self-harm", r.Categories.SelfHarm, float64(r.CategoryScores.SelfHarm)},
		{"self-harm/intent", r.Categories.SelfHarmIntent, float64(r.CategoryScores.SelfHarmIntent)},
		{"self-harm/instructions", r.Categories.SelfHarmInstructions, float64(r.CategoryScores.SelfHarmInstructions)},
		{"sexual", r.Categories.Sexual, float64(r.CategoryScores.Sexual)},
		{"sexual/minors", r.Categories.SexualMinors, float64(r.CategoryScores.SexualMinors)},
		{"violence", r.Categories.Violence, float64(r.CategoryScores.Violence)},
		{"violence/graphic", r.Categories.ViolenceGraphic, float64(r.CategoryScores.ViolenceGraphic)},
	}
	for _, c := range checks {
		if c.flagged {
			result.Categories = append(result.Categories, c.name)
		}
		if c.score > result.MaxScore {
			result.MaxScore = c.score
		}
	}

	return result, nil
}

func convertMessages(req *llm.Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return messages
}

// isRetryableError classifies transient failures worth another attempt.
// Authentication and validation errors are not retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return true
		case apiErr.HTTPStatusCode >= 500:
			return true
		}
		return false
	}

	msg := err.Error()
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") {
		return true
	}
	if strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") {
		return true
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return true
	}
	return false
}
