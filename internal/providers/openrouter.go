package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// OpenRouterBaseURL is the public API endpoint. Any OpenAI-compatible
// gateway works through OpenRouterConfig.BaseURL.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterConfig holds configuration for the OpenRouter chat provider.
type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// RequestsPerMinute caps outbound request rate. Zero disables the
	// limiter.
	RequestsPerMinute int

	// MaxRetries bounds transport-level retries for throttles and
	// server errors. The pipeline's own retry policy sits above this.
	MaxRetries int

	// RetryDelay is the base backoff between transport retries.
	RetryDelay time.Duration

	// Timeout is the default per-request timeout when the request does
	// not carry its own. It spans all transport retries of one call.
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenRouterClient implements LLMClient against the OpenRouter chat
// completions API over plain HTTP. Structured output is enforced
// locally: the response body is parsed and validated against the
// request schema after the call, same as the SDK client.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpc      *http.Client
	limiter    *RateLimiter
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	logger     *slog.Logger
}

// NewOpenRouterClient creates an OpenRouter chat provider.
func NewOpenRouterClient(cfg OpenRouterConfig) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "openai/gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.HTTPClient == nil {
		// No client-level timeout: the per-call context owns the
		// deadline so it covers the whole retry loop.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &OpenRouterClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpc:      cfg.HTTPClient,
		limiter:    NewRateLimiter(cfg.RequestsPerMinute, cfg.Logger),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}, nil
}

// Name returns the provider identifier.
func (c *OpenRouterClient) Name() string { return "openrouter" }

// Chat sends a chat completion request and returns the result. The
// returned ChatResult is non-nil even on failure so callers can record
// timing and error classification.
func (c *OpenRouterClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	result := &ChatResult{
		Provider:  c.Name(),
		RequestID: req.RequestID,
	}
	if result.RequestID == "" {
		result.RequestID = uuid.NewString()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	result.ModelUsed = model

	if err := c.limiter.Wait(ctx); err != nil {
		result.ExecutionTime = time.Since(start)
		result.ErrorType = ErrorTypeCancelled
		result.ErrorMessage = err.Error()
		return result, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wire := &openRouterRequest{
		Model:       model,
		Messages:    make([]openRouterMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Usage:       &openRouterUsage{Include: true},
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, openRouterMessage{Role: m.Role, Content: m.Content})
	}
	if req.ResponseFormat != nil {
		wire.ResponseFormat = &openRouterResponseFormat{
			Type:       req.ResponseFormat.Type,
			JSONSchema: req.ResponseFormat.JSONSchema,
		}
	}

	resp, attempts, err := c.doRequest(callCtx, "/chat/completions", wire)
	result.ExecutionTime = time.Since(start)
	result.Attempts = attempts

	if err != nil {
		c.classifyError(result, err)
		c.logger.Warn("openrouter chat request failed",
			"request_id", result.RequestID,
			"model", model,
			"error_type", result.ErrorType,
			"error", err)
		return result, err
	}

	if resp.Error != nil {
		result.ErrorType = ErrorTypeBadResponse
		result.ErrorMessage = resp.Error.Message
		return result, fmt.Errorf("openrouter: API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		result.ErrorType = ErrorTypeBadResponse
		result.ErrorMessage = "no choices in response"
		return result, fmt.Errorf("openrouter: no choices in response")
	}

	result.Content = resp.Choices[0].Message.Content
	if resp.Model != "" {
		result.ModelUsed = resp.Model
	}
	result.PromptTokens = resp.Usage.PromptTokens
	result.CompletionTokens = resp.Usage.CompletionTokens
	result.TotalTokens = resp.Usage.TotalTokens
	result.CostUSD = resp.Usage.Cost

	if req.ResponseFormat != nil && len(req.ResponseFormat.JSONSchema) > 0 {
		parsed, pErr := ParseStructuredJSON(result.Content)
		if pErr != nil {
			result.ErrorType = ErrorTypeBadResponse
			result.ErrorMessage = pErr.Error()
			return result, fmt.Errorf("openrouter: %w", pErr)
		}
		if vErr := ValidateStructuredJSON(req.ResponseFormat.JSONSchema, parsed); vErr != nil {
			result.ErrorType = ErrorTypeBadResponse
			result.ErrorMessage = vErr.Error()
			return result, fmt.Errorf("openrouter: %w", vErr)
		}
		result.ParsedJSON = parsed
	}

	result.Success = true
	c.logger.Debug("openrouter chat request complete",
		"request_id", result.RequestID,
		"model", result.ModelUsed,
		"total_tokens", result.TotalTokens,
		"duration", result.ExecutionTime.String())
	return result, nil
}

// statusError carries the HTTP status of a failed call so Chat can
// classify it after the retry loop gives up.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// doRequest posts the request, retrying throttles, server errors, and
// retryable in-body API errors. It reports how many attempts were made.
func (c *OpenRouterClient) doRequest(ctx context.Context, path string, wire *openRouterRequest) (*openRouterResponse, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, attempts, fmt.Errorf("%w (last attempt: %v)", err, lastErr)
			}
			return nil, attempts, err
		}

		if attempt > 0 && lastErr != nil {
			injectRetryNonce(wire, attempt)
		}

		body, err := json.Marshal(wire)
		if err != nil {
			return nil, attempts, fmt.Errorf("failed to marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, attempts, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("HTTP-Referer", "https://github.com/sluice-dev/sluice")
		httpReq.Header.Set("X-Title", "Sluice")

		attempts++
		httpResp, err := c.httpc.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		respBody, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		if httpResp.StatusCode != http.StatusOK {
			sErr := &statusError{status: httpResp.StatusCode, body: string(respBody)}
			if !retryableStatus(httpResp.StatusCode) {
				return nil, attempts, sErr
			}
			lastErr = sErr
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		var resp openRouterResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, attempts, fmt.Errorf("failed to unmarshal response: %w", err)
		}

		if retryable, rErr := retryableResponse(&resp); retryable {
			lastErr = rErr
			c.sleepWithJitter(ctx, attempt)
			continue
		}

		return &resp, attempts, nil
	}

	return nil, attempts, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryableStatus reports whether a status is worth another attempt.
// 413 and 422 show up when a gateway cache chokes on a repeated
// payload; the nonce makes the retry distinct.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity, http.StatusTooManyRequests:
		return true
	default:
		return status >= 500
	}
}

// retryableResponse checks a 200 body for transient API-level trouble:
// gateways report overload inside an error object, and some models
// return no choices under load.
func retryableResponse(resp *openRouterResponse) (retryable bool, err error) {
	if resp.Error != nil {
		code := fmt.Sprintf("%v", resp.Error.Code)
		switch code {
		case "overloaded", "rate_limit_exceeded", "500", "502", "503":
			return true, fmt.Errorf("API error (retryable): %s", resp.Error.Message)
		}
		return false, nil
	}
	if len(resp.Choices) == 0 {
		return true, fmt.Errorf("empty choices in response (model=%s, id=%s)", resp.Model, resp.ID)
	}
	return false, nil
}

// injectRetryNonce appends a comment to the last user message so the
// retried request is not byte-identical to the one that failed.
func injectRetryNonce(wire *openRouterRequest, attempt int) {
	for i := len(wire.Messages) - 1; i >= 0; i-- {
		if wire.Messages[i].Role == "user" {
			nonce := uuid.NewString()[:16]
			wire.Messages[i].Content += fmt.Sprintf("\n<!-- retry_%d_id: %s -->", attempt, nonce)
			return
		}
	}
}

// sleepWithJitter backs off exponentially with jitter, respecting
// context cancellation.
func (c *OpenRouterClient) sleepWithJitter(ctx context.Context, attempt int) {
	baseDelay := c.retryDelay * time.Duration(1<<attempt)
	if baseDelay > 10*time.Second {
		baseDelay = 10 * time.Second
	}

	// -20% to +30%
	jitter := time.Duration(float64(baseDelay) * (0.8 + 0.5*float64(time.Now().UnixNano()%1000)/1000))

	select {
	case <-ctx.Done():
	case <-time.After(jitter):
	}
}

func (c *OpenRouterClient) classifyError(result *ChatResult, err error) {
	var sErr *statusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.ErrorType = ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		result.ErrorType = ErrorTypeCancelled
	case errors.As(err, &sErr):
		if sErr.status == http.StatusTooManyRequests {
			result.ErrorType = ErrorTypeRateLimited
			result.RetryAfter = 15 * time.Second
			c.limiter.Record429(result.RetryAfter)
		} else {
			result.ErrorType = ErrorTypeService
		}
	default:
		result.ErrorType = ErrorTypeService
	}
	result.ErrorMessage = err.Error()
}

// Wire types for the OpenRouter chat completions API.

type openRouterRequest struct {
	Model          string                    `json:"model"`
	Messages       []openRouterMessage       `json:"messages"`
	Temperature    float64                   `json:"temperature,omitempty"`
	MaxTokens      int                       `json:"max_tokens,omitempty"`
	ResponseFormat *openRouterResponseFormat `json:"response_format,omitempty"`
	Usage          *openRouterUsage          `json:"usage,omitempty"`
}

// openRouterUsage asks the gateway to include cost accounting in the
// response.
type openRouterUsage struct {
	Include bool `json:"include"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type openRouterResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		TotalTokens      int     `json:"total_tokens"`
		Cost             float64 `json:"cost,omitempty"`
	} `json:"usage"`
	Error *openRouterError `json:"error,omitempty"`
}

type openRouterError struct {
	Message  string         `json:"message"`
	Code     any            `json:"code,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
