// Package analysis runs the pipeline's AI calls: structure analysis,
// boundary detection, paragraph reflow, and final review. Every
// response is schema-validated by the provider layer and then
// cross-checked here against the document before anything downstream
// sees it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/prompts"
	"github.com/sluice-dev/sluice/internal/prompts/boundary"
	"github.com/sluice-dev/sluice/internal/prompts/reflow"
	"github.com/sluice-dev/sluice/internal/prompts/review"
	"github.com/sluice-dev/sluice/internal/prompts/structure"
	"github.com/sluice-dev/sluice/internal/providers"
	"github.com/sluice-dev/sluice/internal/recovery"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// Sentinel errors for failure classification.
var (
	// ErrInvalidResponse: the AI answered, but the answer fails
	// validation against the document.
	ErrInvalidResponse = errors.New("invalid AI response")
	// ErrTimeout: the request hit its deadline.
	ErrTimeout = errors.New("AI request timed out")
	// ErrUnavailable: transport or service failure.
	ErrUnavailable = errors.New("AI service unavailable")
)

// Classify maps an analysis error to its recovery failure kind.
func Classify(err error) recovery.FailureKind {
	switch {
	case errors.Is(err, ErrInvalidResponse):
		return recovery.AIResponseInvalid
	case errors.Is(err, ErrTimeout):
		return recovery.AITimeout
	default:
		return recovery.AIError
	}
}

// Auditor receives a record of every chat call for audit storage.
type Auditor interface {
	RecordCall(stage string, req *providers.ChatRequest, res *providers.ChatResult)
}

// Client issues the pipeline's AI calls through a chat provider.
type Client struct {
	llm      providers.LLMClient
	resolver *prompts.Resolver
	auditor  Auditor
	logger   *slog.Logger

	// rateLimitAttempts bounds transparent retries of throttled calls.
	// Timeout and service failures are not retried here: the recovery
	// coordinator owns that policy.
	rateLimitAttempts uint
}

// Option configures a Client.
type Option func(*Client)

// WithResolver supplies a prompt resolver for config-level overrides.
func WithResolver(r *prompts.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithAuditor supplies an audit sink for chat calls.
func WithAuditor(a Auditor) Option {
	return func(c *Client) { c.auditor = a }
}

// WithLogger supplies the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an analysis client on top of a chat provider.
func NewClient(llm providers.LLMClient, opts ...Option) *Client {
	c := &Client{
		llm:               llm,
		logger:            slog.Default(),
		rateLimitAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzeStructure maps the document's structure: regions, removal
// patterns, characteristics, and the core content range.
func (c *Client) AnalyzeStructure(ctx context.Context, doc *document.Document, documentID string) (*hints.StructureHints, error) {
	sample := BuildSample(doc, DefaultSampleSpec())

	req := structure.BuildRequest(structure.Input{
		DocumentID:           documentID,
		TotalLines:           doc.LineCount(),
		TotalWords:           doc.WordCount(),
		Sample:               sample,
		SystemPromptOverride: c.override(structure.SystemPromptKey),
		UserPromptOverride:   c.override(structure.UserPromptKey),
	})

	res, err := c.chat(ctx, "structure", req)
	if err != nil {
		return nil, err
	}

	parsed, err := structure.ParseResult(res.ParsedJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	h, err := hintsFromResult(documentID, doc, parsed)
	if err != nil {
		return nil, err
	}

	c.logger.Info("structure analysis complete",
		"document_id", documentID,
		"content_type", h.ContentType,
		"regions", len(h.Regions),
		"patterns", len(h.Patterns),
		"confidence", h.OverallConfidence)
	return h, nil
}

// BoundaryResult is a confirmed set of core-content boundaries in the
// coordinates of the analyzed document.
type BoundaryResult struct {
	CoreStart       int
	CoreEnd         int
	BackMatterStart int // zero when the document has no back matter
	Confidence      float64
	Notes           string
	Method          hints.DetectionMethod
}

// DetectBoundary confirms the exact core-content boundary lines around
// the hinted range.
func (c *Client) DetectBoundary(ctx context.Context, doc *document.Document, h *hints.StructureHints) (*BoundaryResult, error) {
	core := h.CoreContent
	if core == nil {
		return nil, fmt.Errorf("%w: no core content hint to confirm", ErrInvalidResponse)
	}

	req := boundary.BuildRequest(boundary.Input{
		DocumentID:           h.DocumentID,
		TotalLines:           doc.LineCount(),
		HintStart:            core.Start,
		HintEnd:              core.End,
		StartExcerpt:         NumberedExcerpt(doc, core.Start, 8),
		EndExcerpt:           NumberedExcerpt(doc, core.End, 8),
		SystemPromptOverride: c.override(boundary.SystemPromptKey),
		UserPromptOverride:   c.override(boundary.UserPromptKey),
	})

	res, err := c.chat(ctx, "boundary", req)
	if err != nil {
		return nil, err
	}

	parsed, err := boundary.ParseResult(res.ParsedJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if err := validateBoundaries(parsed, doc.LineCount(), core); err != nil {
		return nil, err
	}

	result := &BoundaryResult{
		CoreStart:  parsed.CoreStartLine,
		CoreEnd:    parsed.CoreEndLine,
		Confidence: minConfidence(parsed),
		Notes:      parsed.Notes,
		Method:     hints.MethodAI,
	}
	if parsed.BackMatterStartLine != nil {
		result.BackMatterStart = *parsed.BackMatterStartLine
	}

	c.logger.Info("boundary detection complete",
		"document_id", h.DocumentID,
		"core_start", result.CoreStart,
		"core_end", result.CoreEnd,
		"back_matter_start", result.BackMatterStart,
		"confidence", result.Confidence)
	return result, nil
}

// Reflow rejoins hard-wrapped lines into paragraphs. The response is
// rejected unless the word count matches the input exactly, after
// accounting for rejoined hyphen splits.
func (c *Client) Reflow(ctx context.Context, text string, chunkIndex, chunkCount int) (*reflow.Result, error) {
	wordsBefore := textutil.WordCount(text)

	req := reflow.BuildRequest(reflow.Input{
		ChunkIndex:           chunkIndex,
		ChunkCount:           chunkCount,
		WordCount:            wordsBefore,
		Text:                 text,
		SystemPromptOverride: c.override(reflow.SystemPromptKey),
		UserPromptOverride:   c.override(reflow.UserPromptKey),
	})

	res, err := c.chat(ctx, "reflow", req)
	if err != nil {
		return nil, err
	}

	parsed, err := reflow.ParseResult(res.ParsedJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	// Each rejoined hyphen split merges two tokens into one.
	wordsAfter := textutil.WordCount(parsed.ReflowedText)
	expected := wordsBefore - parsed.JoinedHyphens
	if wordsAfter != expected {
		return nil, fmt.Errorf("%w: reflow word count %d, want %d (input %d, joins %d)",
			ErrInvalidResponse, wordsAfter, expected, wordsBefore, parsed.JoinedHyphens)
	}

	return parsed, nil
}

// Review runs the final quality review over run metrics and samples.
func (c *Client) Review(ctx context.Context, input review.Input) (*review.Result, error) {
	input.SystemPromptOverride = c.override(review.SystemPromptKey)
	input.UserPromptOverride = c.override(review.UserPromptKey)

	req := review.BuildRequest(input)
	res, err := c.chat(ctx, "review", req)
	if err != nil {
		return nil, err
	}

	parsed, err := review.ParseResult(res.ParsedJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return parsed, nil
}

// chat issues one request, transparently retrying only throttled calls.
func (c *Client) chat(ctx context.Context, stage string, req *providers.ChatRequest) (*providers.ChatResult, error) {
	var res *providers.ChatResult

	err := retry.Do(
		func() error {
			var callErr error
			res, callErr = c.llm.Chat(ctx, req)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(c.rateLimitAttempts),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool {
			return res != nil && res.ErrorType == providers.ErrorTypeRateLimited
		}),
	)

	if c.auditor != nil && res != nil {
		c.auditor.RecordCall(stage, req, res)
	}

	if err != nil {
		return res, c.mapError(res, err)
	}
	return res, nil
}

func (c *Client) mapError(res *providers.ChatResult, err error) error {
	if res == nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch res.ErrorType {
	case providers.ErrorTypeTimeout:
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case providers.ErrorTypeBadResponse:
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	case providers.ErrorTypeCancelled:
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (c *Client) override(key string) string {
	if c.resolver == nil {
		return ""
	}
	resolved, err := c.resolver.Resolve(key)
	if err != nil || !resolved.IsOverride {
		return ""
	}
	return resolved.Text
}

// validateBoundaries rejects structurally impossible boundary answers.
// The confirmed core must at least intersect the hinted core: the hint
// is frozen reconnaissance knowledge, and an answer entirely outside it
// means the model lost the document.
func validateBoundaries(r *boundary.Result, totalLines int, hint *document.LineRange) error {
	if r.CoreStartLine < 1 || r.CoreStartLine > totalLines {
		return fmt.Errorf("%w: core start %d outside document (1..%d)",
			ErrInvalidResponse, r.CoreStartLine, totalLines)
	}
	if r.CoreEndLine < 1 || r.CoreEndLine > totalLines {
		return fmt.Errorf("%w: core end %d outside document (1..%d)",
			ErrInvalidResponse, r.CoreEndLine, totalLines)
	}
	if r.CoreStartLine > r.CoreEndLine {
		return fmt.Errorf("%w: core start %d after core end %d",
			ErrInvalidResponse, r.CoreStartLine, r.CoreEndLine)
	}
	confirmed := document.LineRange{Start: r.CoreStartLine, End: r.CoreEndLine}
	if !confirmed.Overlaps(*hint) {
		return fmt.Errorf("%w: confirmed core %s does not intersect hinted core %s",
			ErrInvalidResponse, confirmed, hint)
	}
	if r.BackMatterStartLine != nil {
		bm := *r.BackMatterStartLine
		if bm < 1 || bm > totalLines {
			return fmt.Errorf("%w: back matter start %d outside document (1..%d)",
				ErrInvalidResponse, bm, totalLines)
		}
		if bm <= r.CoreEndLine {
			return fmt.Errorf("%w: back matter start %d not after core end %d",
				ErrInvalidResponse, bm, r.CoreEndLine)
		}
		if bm <= hint.Start {
			return fmt.Errorf("%w: back matter start %d inside hinted core %s",
				ErrInvalidResponse, bm, hint)
		}
	}
	return nil
}

func minConfidence(r *boundary.Result) float64 {
	conf := r.CoreStartConfidence
	if r.CoreEndConfidence < conf {
		conf = r.CoreEndConfidence
	}
	if r.BackMatterStartLine != nil && r.BackMatterConfidence < conf {
		conf = r.BackMatterConfidence
	}
	return conf
}
