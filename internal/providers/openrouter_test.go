package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func openRouterTestClient(t *testing.T, url string) *OpenRouterClient {
	t.Helper()
	client, err := NewOpenRouterClient(OpenRouterConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewOpenRouterClient: %v", err)
	}
	return client
}

func openRouterOKBody(content string) map[string]any {
	return map[string]any{
		"id":    "gen-1",
		"model": "openai/gpt-4o-mini",
		"choices": []map[string]any{
			{
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     120,
			"completion_tokens": 30,
			"total_tokens":      150,
			"cost":              0.00045,
		},
	}
}

func TestOpenRouterChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openRouterOKBody("The cleaned paragraph."))
	}))
	defer server.Close()

	client := openRouterTestClient(t, server.URL)
	res, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "reflow this"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !res.Success {
		t.Error("not marked success")
	}
	if res.Content != "The cleaned paragraph." {
		t.Errorf("content = %q", res.Content)
	}
	if res.TotalTokens != 150 {
		t.Errorf("total tokens = %d, want 150", res.TotalTokens)
	}
	if res.CostUSD != 0.00045 {
		t.Errorf("cost = %v, want 0.00045", res.CostUSD)
	}
	if res.ModelUsed != "openai/gpt-4o-mini" {
		t.Errorf("model used = %q", res.ModelUsed)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
}

func TestOpenRouterStructuredOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openRouterOKBody("```json\n{\"confidence\": 0.9}\n```"))
	}))
	defer server.Close()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"confidence": {"type": "number"}},
		"required": ["confidence"]
	}`)

	client := openRouterTestClient(t, server.URL)
	res, err := client.Chat(context.Background(), &ChatRequest{
		Messages:       []Message{{Role: "user", Content: "analyze"}},
		ResponseFormat: &ResponseFormat{Type: "json_schema", JSONSchema: schema},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(res.ParsedJSON) == 0 {
		t.Fatal("parsed JSON not populated")
	}
	var got struct {
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(res.ParsedJSON, &got); err != nil {
		t.Fatalf("parsed JSON invalid: %v", err)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got.Confidence)
	}
}

func TestOpenRouterStructuredOutputRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openRouterOKBody(`{"confidence": "high"}`))
	}))
	defer server.Close()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"confidence": {"type": "number"}},
		"required": ["confidence"]
	}`)

	client := openRouterTestClient(t, server.URL)
	res, err := client.Chat(context.Background(), &ChatRequest{
		Messages:       []Message{{Role: "user", Content: "analyze"}},
		ResponseFormat: &ResponseFormat{Type: "json_schema", JSONSchema: schema},
	})
	if err == nil {
		t.Fatal("schema-violating response should error")
	}
	if res.ErrorType != ErrorTypeBadResponse {
		t.Errorf("error type = %q, want %q", res.ErrorType, ErrorTypeBadResponse)
	}
}

func TestOpenRouterRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(openRouterOKBody("second time lucky"))
	}))
	defer server.Close()

	client := openRouterTestClient(t, server.URL)
	res, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "go"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Content != "second time lucky" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
}

func TestOpenRouterRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(OpenRouterConfig{
		APIKey:            "test-key",
		BaseURL:           server.URL,
		RequestsPerMinute: 60,
		MaxRetries:        2,
		RetryDelay:        time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewOpenRouterClient: %v", err)
	}

	res, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "go"}},
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if res.ErrorType != ErrorTypeRateLimited {
		t.Errorf("error type = %q, want %q", res.ErrorType, ErrorTypeRateLimited)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if _, backoff := client.limiter.Status(); backoff <= 0 {
		t.Error("throttle did not arm the limiter backoff")
	}
}

func TestOpenRouterInBodyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "gen-err",
			"error": map[string]any{"message": "content policy refusal", "code": "invalid_request"},
		})
	}))
	defer server.Close()

	client := openRouterTestClient(t, server.URL)
	res, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "go"}},
	})
	if err == nil {
		t.Fatal("expected error for in-body API error")
	}
	if res.ErrorType != ErrorTypeBadResponse {
		t.Errorf("error type = %q, want %q", res.ErrorType, ErrorTypeBadResponse)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (non-retryable)", res.Attempts)
	}
	if !strings.Contains(res.ErrorMessage, "content policy refusal") {
		t.Errorf("error message = %q", res.ErrorMessage)
	}
}

func TestOpenRouterNonceOnRetry(t *testing.T) {
	var lastUserContent atomic.Value
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var wire openRouterRequest
		json.NewDecoder(r.Body).Decode(&wire)
		if len(wire.Messages) > 0 {
			lastUserContent.Store(wire.Messages[len(wire.Messages)-1].Content)
		}
		if calls.Add(1) == 1 {
			http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode(openRouterOKBody("ok"))
	}))
	defer server.Close()

	client := openRouterTestClient(t, server.URL)
	if _, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "original payload"},
		},
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	retried, _ := lastUserContent.Load().(string)
	if !strings.HasPrefix(retried, "original payload") {
		t.Fatalf("retried content lost the original: %q", retried)
	}
	if !strings.Contains(retried, "retry_1_id") {
		t.Errorf("retried content carries no nonce: %q", retried)
	}
}

func TestOpenRouterCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openRouterOKBody("never seen"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := openRouterTestClient(t, server.URL)
	res, err := client.Chat(ctx, &ChatRequest{
		Messages: []Message{{Role: "user", Content: "go"}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.ErrorType != ErrorTypeCancelled {
		t.Errorf("error type = %q, want %q", res.ErrorType, ErrorTypeCancelled)
	}
}

func TestOpenRouterRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenRouterClient(OpenRouterConfig{}); err == nil {
		t.Fatal("missing API key should error")
	}
}
