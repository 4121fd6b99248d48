package aicall

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sluice-dev/sluice/internal/providers"
)

// Sink persists batches of call records. Implemented by the run store.
type Sink interface {
	SaveCalls(ctx context.Context, calls []*Call) error
}

// Config configures a Recorder.
type Config struct {
	Sink Sink

	// Run context stamped onto every record.
	RunID      string
	DocumentID string

	BatchSize     int           // flush after N records (default 50)
	FlushInterval time.Duration // or after this long (default 2s)
	QueueSize     int           // buffer size (default 512)
	Logger        *slog.Logger
}

// Recorder captures AI calls fire-and-forget. Records are queued,
// batched, and written by a background goroutine; Stop flushes whatever
// remains. A nil sink disables persistence but totals still accumulate.
type Recorder struct {
	sink   Sink
	logger *slog.Logger

	runID      string
	documentID string

	batchSize     int
	flushInterval time.Duration

	queue chan *Call

	mu     sync.Mutex
	phase  string
	totals Totals

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRecorder creates a call recorder for one run.
func NewRecorder(cfg Config) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Recorder{
		sink:          cfg.Sink,
		logger:        cfg.Logger,
		runID:         cfg.RunID,
		documentID:    cfg.DocumentID,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan *Call, cfg.QueueSize),
	}
}

// Start begins background writing. No-op when no sink is configured.
func (r *Recorder) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	if r.sink == nil {
		return
	}
	r.wg.Add(1)
	go r.runBatcher()
}

// Stop flushes remaining records and shuts the writer down.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.queue)
		r.wg.Wait()
		if r.cancel != nil {
			r.cancel()
		}
	})
}

// SetPhase updates the phase stamped onto subsequent records.
func (r *Recorder) SetPhase(phase string) {
	r.mu.Lock()
	r.phase = phase
	r.mu.Unlock()
}

// RecordCall captures one chat exchange. Satisfies the analysis
// client's audit hook.
func (r *Recorder) RecordCall(stage string, req *providers.ChatRequest, res *providers.ChatResult) {
	r.mu.Lock()
	phase := r.phase
	r.mu.Unlock()

	call := FromChatResult(stage, req, res, RecordOptions{
		RunID:      r.runID,
		DocumentID: r.documentID,
		Phase:      phase,
	})
	if call == nil {
		return
	}

	r.mu.Lock()
	r.totals.add(call)
	r.mu.Unlock()

	// Persistence requires a sink and a started writer.
	if r.sink == nil || r.ctx == nil {
		return
	}
	r.send(call)
}

// Totals reports the run's accumulated usage.
func (r *Recorder) Totals() Totals {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals
}

func (r *Recorder) send(call *Call) {
	defer func() {
		if recover() != nil {
			r.logger.Warn("call recorder stopped, dropping record",
				"stage", call.Stage, "run_id", call.RunID)
		}
	}()

	select {
	case r.queue <- call:
	default:
		select {
		case r.queue <- call:
		case <-r.ctx.Done():
			r.logger.Warn("call recorder queue full, dropping record",
				"stage", call.Stage, "run_id", call.RunID)
		}
	}
}

func (r *Recorder) runBatcher() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]*Call, 0, r.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.sink.SaveCalls(context.Background(), batch); err != nil {
			r.logger.Error("saving call records failed",
				"count", len(batch), "error", err)
		}
		batch = make([]*Call, 0, r.batchSize)
	}

	for {
		select {
		case call, ok := <-r.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, call)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
