package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/corpus/internal/llm"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewDefaults(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Model() != "gpt-4o-mini" {
		t.Errorf("Model() = %q", p.Model())
	}
	if p.timeout != 60*time.Second {
		t.Errorf("timeout = %v", p.timeout)
	}
	if p.maxRetries != 3 {
		t.Errorf("maxRetries = %d", p.maxRetries)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestConvertMessages(t *testing.T) {
	req := &llm.Request{
		System: "You answer briefly.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Hi"},
			{Role: llm.RoleAssistant, Content: "Hello"},
			{Role: llm.RoleUser, Content: "Bye"},
		},
	}

	got := convertMessages(req)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4 (system + 3)", len(got))
	}
	if got[0].Role != openai.ChatMessageRoleSystem || got[0].Content != "You answer briefly." {
		t.Errorf("system message = %+v", got[0])
	}
	if got[1].Role != "user" || got[3].Content != "Bye" {
		t.Errorf("messages converted wrong: %+v", got)
	}

	// Without a system prompt nothing is injected
	got = convertMessages(&llm.Request{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func completionResponse(text string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": text},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{"prompt_tokens": 9, "completion_tokens": 4, "total_tokens": 13},
	}
}

func TestCompleteReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model"] != "gpt-4o-mini" {
			t.Errorf("model = %v", req["model"])
		}
		if stream, ok := req["stream"].(bool); ok && stream {
			t.Error("request should not stream")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionResponse("The answer."))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := p.Complete(context.Background(), &llm.Request{
		System:   "Answer questions.",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "What?"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "The answer." {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 13 || resp.Usage.PromptTokens != 9 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "upstream unavailable", "type": "server_error"},
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionResponse("recovered"))
	}))
	defer srv.Close()

	p, err := New(Config{
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := p.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("Text = %q", resp.Text)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestCompleteDoesNotRetryAuthErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	p, err := New(Config{
		APIKey:     "sk-bad",
		BaseURL:    srv.URL + "/v1",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = p.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected auth error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", got)
	}
}

func TestCompleteNilRequest(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil request")
	}
}

func TestModerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/moderations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "modr-test",
			"model": "text-moderation-007",
			"results": []map[string]any{
				{
					"flagged": true,
					"categories": map[string]bool{
						"violence": true,
						"hate":     false,
					},
					"category_scores": map[string]float64{
						"violence": 0.97,
						"hate":     0.02,
					},
				},
			},
		})
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := p.Moderate(context.Background(), "threatening text")
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if !result.Flagged {
		t.Error("Flagged = false, want true")
	}
	if len(result.Categories) != 1 || result.Categories[0] != "violence" {
		t.Errorf("Categories = %v", result.Categories)
	}
	if result.MaxScore < 0.96 {
		t.Errorf("MaxScore = %f", result.MaxScore)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"api rate limit", &openai.APIError{HTTPStatusCode: 429}, true},
		{"api server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"api auth error", &openai.APIError{HTTPStatusCode: 401}, false},
		{"api bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"rate limit text", errors.New("rate limit exceeded"), true},
		{"gateway timeout text", errors.New("HTTP 504 Gateway Timeout"), true},
		{"deadline", errors.New("context deadline exceeded"), true},
		{"unknown", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}
