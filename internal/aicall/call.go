// Package aicall records every AI chat call made during a cleaning run
// for cost accounting and audit. Records are buffered and written in
// the background; recording never blocks the pipeline.
package aicall

import (
	"time"

	"github.com/google/uuid"

	"github.com/sluice-dev/sluice/internal/providers"
)

// maxStoredResponse caps how much of a response body is persisted.
// Reflow responses can run to tens of kilobytes; the audit trail needs
// enough to diagnose a bad answer, not the whole document back.
const maxStoredResponse = 4096

// Call is one recorded AI chat call.
type Call struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Run context.
	RunID      string `json:"run_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Phase      string `json:"phase,omitempty"`
	Stage      string `json:"stage"`

	// Model info.
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	RequestID string `json:"request_id,omitempty"`

	// Usage.
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	Attempts         int     `json:"attempts"`

	// Response, truncated to maxStoredResponse.
	Response  string `json:"response,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	// Status.
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RecordOptions carries the run context stamped onto every record.
type RecordOptions struct {
	RunID      string
	DocumentID string
	Phase      string
}

// FromChatResult builds a Call from a finished chat exchange.
// Returns nil if result is nil.
func FromChatResult(stage string, req *providers.ChatRequest, result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:               uuid.NewString(),
		Timestamp:        time.Now().UTC(),
		LatencyMs:        int(result.ExecutionTime.Milliseconds()),
		RunID:            opts.RunID,
		DocumentID:       opts.DocumentID,
		Phase:            opts.Phase,
		Stage:            stage,
		Provider:         result.Provider,
		Model:            result.ModelUsed,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,
		CostUSD:          result.CostUSD,
		Attempts:         result.Attempts,
		Success:          result.Success,
	}

	if req != nil {
		call.RequestID = req.RequestID
	}

	call.Response = result.Content
	if len(call.Response) > maxStoredResponse {
		call.Response = call.Response[:maxStoredResponse]
		call.Truncated = true
	}

	if !result.Success {
		call.ErrorType = result.ErrorType
		call.Error = result.ErrorMessage
	}

	return call
}

// Totals aggregates recorded calls for run-level reporting.
type Totals struct {
	Calls            int     `json:"calls"`
	Failures         int     `json:"failures"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

func (t *Totals) add(c *Call) {
	t.Calls++
	if !c.Success {
		t.Failures++
	}
	t.PromptTokens += c.PromptTokens
	t.CompletionTokens += c.CompletionTokens
	t.CostUSD += c.CostUSD
}
