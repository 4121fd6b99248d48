package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMockClientScriptedResponses(t *testing.T) {
	mock := NewMockClient(`{"fallback": true}`)
	mock.Enqueue(`{"step": 1}`)
	mock.Enqueue(`{"step": 2}`)

	ctx := context.Background()
	req := &ChatRequest{Messages: []Message{{Role: "user", Content: "go"}}}

	for i, want := range []string{`{"step": 1}`, `{"step": 2}`, `{"fallback": true}`} {
		res, err := mock.Chat(ctx, req)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !res.Success {
			t.Fatalf("call %d: not marked success", i)
		}
		if res.Content != want {
			t.Errorf("call %d: got %q, want %q", i, res.Content, want)
		}
	}

	if mock.Calls() != 3 {
		t.Errorf("calls = %d, want 3", mock.Calls())
	}
}

func TestMockClientErrorInjection(t *testing.T) {
	mock := NewMockClient("")
	mock.EnqueueError(ErrorTypeTimeout, errors.New("deadline exceeded"))
	mock.Enqueue(`{"ok": true}`)

	ctx := context.Background()
	req := &ChatRequest{Messages: []Message{{Role: "user", Content: "go"}}}

	res, err := mock.Chat(ctx, req)
	if err == nil {
		t.Fatal("expected scripted error")
	}
	if res.ErrorType != ErrorTypeTimeout {
		t.Errorf("error type = %q, want %q", res.ErrorType, ErrorTypeTimeout)
	}

	res, err = mock.Chat(ctx, req)
	if err != nil {
		t.Fatalf("second call should succeed: %v", err)
	}
	if res.Content != `{"ok": true}` {
		t.Errorf("content = %q", res.Content)
	}
}

func TestMockClientFailAfter(t *testing.T) {
	mock := NewMockClient(`{}`)
	mock.FailAfter = 2

	ctx := context.Background()
	req := &ChatRequest{Messages: []Message{{Role: "user", Content: "go"}}}

	for i := 0; i < 2; i++ {
		if _, err := mock.Chat(ctx, req); err != nil {
			t.Fatalf("call %d should succeed: %v", i+1, err)
		}
	}
	res, err := mock.Chat(ctx, req)
	if err == nil {
		t.Fatal("third call should fail")
	}
	if res.ErrorType != ErrorTypeService {
		t.Errorf("error type = %q, want %q", res.ErrorType, ErrorTypeService)
	}
}

func TestMockClientValidatesSchema(t *testing.T) {
	mock := NewMockClient("")
	mock.Enqueue(`{"confidence": "high"}`)

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"confidence": {"type": "number"}},
		"required": ["confidence"]
	}`)

	req := &ChatRequest{
		Messages:       []Message{{Role: "user", Content: "go"}},
		ResponseFormat: &ResponseFormat{Type: "json_schema", JSONSchema: schema},
	}

	res, err := mock.Chat(context.Background(), req)
	if err == nil {
		t.Fatal("schema-violating response should error")
	}
	if res.ErrorType != ErrorTypeBadResponse {
		t.Errorf("error type = %q, want %q", res.ErrorType, ErrorTypeBadResponse)
	}

	mock.Enqueue(`{"confidence": 0.9}`)
	res, err = mock.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("valid response rejected: %v", err)
	}
	if len(res.ParsedJSON) == 0 {
		t.Error("parsed JSON not populated")
	}
}

func TestMockClientContextCancelled(t *testing.T) {
	mock := NewMockClient(`{}`)
	mock.Latency = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := mock.Chat(ctx, &ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.ErrorType != ErrorTypeCancelled {
		t.Errorf("error type = %q, want %q", res.ErrorType, ErrorTypeCancelled)
	}
}
