package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIConfig holds configuration for the OpenAI chat provider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// RequestsPerMinute caps outbound request rate. Zero disables the
	// limiter.
	RequestsPerMinute int

	// MaxRetries configures SDK-level retries. The pipeline has its own
	// retry policy, so this defaults to zero.
	MaxRetries int

	// Timeout is the default per-request timeout when the request does
	// not carry its own.
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAIClient implements LLMClient against the OpenAI chat completions
// API. Structured output is enforced locally: the response body is
// parsed and validated against the request schema after the call.
type OpenAIClient struct {
	client  openai.Client
	model   string
	limiter *RateLimiter
	timeout time.Duration
	logger  *slog.Logger
}

// openaiPricing maps model prefixes to USD cost per million tokens.
type openaiPricing struct {
	inputPerM  float64
	outputPerM float64
}

var openaiPrices = map[string]openaiPricing{
	"gpt-4o-mini": {inputPerM: 0.15, outputPerM: 0.60},
	"gpt-4o":      {inputPerM: 2.50, outputPerM: 10.00},
	"gpt-4.1":     {inputPerM: 2.00, outputPerM: 8.00},
	"o4-mini":     {inputPerM: 1.10, outputPerM: 4.40},
}

// NewOpenAIClient creates an OpenAI chat provider.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		limiter: NewRateLimiter(cfg.RequestsPerMinute, cfg.Logger),
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string { return "openai" }

// Chat sends a chat completion request and returns the result. The
// returned ChatResult is non-nil even on failure so callers can record
// timing and error classification.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
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

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: buildMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(callCtx, params)
	result.ExecutionTime = time.Since(start)
	result.Attempts = 1

	if err != nil {
		c.classifyError(result, err)
		c.logger.Warn("openai chat request failed",
			"request_id", result.RequestID,
			"model", model,
			"error_type", result.ErrorType,
			"error", err)
		return result, err
	}

	if len(resp.Choices) == 0 {
		result.ErrorType = ErrorTypeBadResponse
		result.ErrorMessage = "no choices in response"
		return result, fmt.Errorf("openai: no choices in response")
	}

	result.Content = resp.Choices[0].Message.Content
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)
	result.CostUSD = estimateOpenAICost(model, result.PromptTokens, result.CompletionTokens)

	if req.ResponseFormat != nil && len(req.ResponseFormat.JSONSchema) > 0 {
		parsed, pErr := ParseStructuredJSON(result.Content)
		if pErr != nil {
			result.ErrorType = ErrorTypeBadResponse
			result.ErrorMessage = pErr.Error()
			return result, fmt.Errorf("openai: %w", pErr)
		}
		if vErr := ValidateStructuredJSON(req.ResponseFormat.JSONSchema, parsed); vErr != nil {
			result.ErrorType = ErrorTypeBadResponse
			result.ErrorMessage = vErr.Error()
			return result, fmt.Errorf("openai: %w", vErr)
		}
		result.ParsedJSON = parsed
	}

	result.Success = true
	c.logger.Debug("openai chat request complete",
		"request_id", result.RequestID,
		"model", model,
		"total_tokens", result.TotalTokens,
		"duration", result.ExecutionTime.String())
	return result, nil
}

func buildMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (c *OpenAIClient) classifyError(result *ChatResult, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.ErrorType = ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		result.ErrorType = ErrorTypeCancelled
	default:
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.StatusCode == http.StatusTooManyRequests:
				result.ErrorType = ErrorTypeRateLimited
				result.RetryAfter = 15 * time.Second
				c.limiter.Record429(result.RetryAfter)
			case apiErr.StatusCode >= 500:
				result.ErrorType = ErrorTypeService
			default:
				result.ErrorType = ErrorTypeService
			}
		} else {
			result.ErrorType = ErrorTypeService
		}
	}
	result.ErrorMessage = err.Error()
}

func estimateOpenAICost(model string, promptTokens, completionTokens int) float64 {
	var price openaiPricing
	best := 0
	for prefix, p := range openaiPrices {
		// Longest matching prefix wins so gpt-4o-mini does not fall
		// through to gpt-4o.
		if strings.HasPrefix(model, prefix) && len(prefix) > best {
			price = p
			best = len(prefix)
		}
	}
	if best == 0 {
		return 0
	}
	return float64(promptTokens)/1e6*price.inputPerM +
		float64(completionTokens)/1e6*price.outputPerM
}
