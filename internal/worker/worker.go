// Package worker drives one harvest run: it pulls records from the crawler,
// assembles documents, and hands them to a sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/crawler"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/datacite"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/metrics"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/transform"
)

// Source yields raw records until exhausted. *crawler.Crawler satisfies it.
type Source interface {
	HasMore() bool
	Advance(ctx context.Context) (crawler.RawRecord, error)
	SizeEstimate() int
}

// Sink receives finished documents.
type Sink interface {
	Save(ctx context.Context, doc datacite.Document) error
}

// RunRecorder persists run history. Failures are logged and never stop a run.
type RunRecorder interface {
	StartRun(ctx context.Context, snap Snapshot) error
	FinishRun(ctx context.Context, snap Snapshot) error
}

// ErrRunNotFound signals that a recorded run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Status is the lifecycle state of a run.
type Status string

// Run statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

const recordTimeout = 5 * time.Second

// Document outcomes reported to metrics.
const (
	documentSaved      = "saved"
	documentDiscarded  = "discarded"
	documentSinkFailed = "sink_failed"
)

// Counters track per-run progress.
type Counters struct {
	Attempted  int `json:"attempted"`
	Found      int `json:"found"`
	NotFound   int `json:"not_found"`
	Failed     int `json:"failed"`
	Documents  int `json:"documents"`
	Discarded  int `json:"discarded"`
	SinkErrors int `json:"sink_errors"`
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	RunID        string    `json:"run_id"`
	Status       Status    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	SizeEstimate int       `json:"size_estimate"`
	Counters     Counters  `json:"counters"`
	Error        string    `json:"error,omitempty"`
}

// Worker runs a single harvest. Snapshot may be called from any goroutine.
type Worker struct {
	source      Source
	transformer transform.Transformer
	sink        Sink
	recorder    RunRecorder
	logger      *zap.Logger
	now         func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

// Option customizes a Worker.
type Option func(*Worker)

// WithRecorder records run start and finish through r.
func WithRecorder(r RunRecorder) Option {
	return func(w *Worker) {
		w.recorder = r
	}
}

// New constructs a Worker.
func New(source Source, transformer transform.Transformer, sink Sink, logger *zap.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		source:      source,
		transformer: transformer,
		sink:        sink,
		logger:      logger,
		now:         time.Now,
		snap:        Snapshot{Status: StatusPending},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot returns a copy of the current run state.
func (w *Worker) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snap
}

// Run blocks until the source is exhausted or ctx ends. Per-record failures
// are counted and logged; only cancellation is returned as an error.
func (w *Worker) Run(ctx context.Context) (Snapshot, error) {
	runID := newRunID()
	w.update(func(s *Snapshot) {
		s.RunID = runID
		s.Status = StatusRunning
		s.StartedAt = w.now()
		s.SizeEstimate = w.source.SizeEstimate()
	})
	logger := w.logger.With(zap.String("run_id", runID))
	logger.Info("harvest started", zap.Int("size_estimate", w.source.SizeEstimate()))
	if w.recorder != nil {
		if err := w.recorder.StartRun(ctx, w.Snapshot()); err != nil {
			logger.Error("record run start failed", zap.Error(err))
		}
	}

	var runErr error
	for w.source.HasMore() {
		rec, err := w.source.Advance(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrExhausted) {
				break
			}
			runErr = err
			break
		}
		w.handleRecord(ctx, logger, rec)
	}

	snap := w.finish(ctx, runErr)
	if w.recorder != nil {
		// Record the outcome even after cancellation.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		if err := w.recorder.FinishRun(recordCtx, snap); err != nil {
			logger.Error("record run finish failed", zap.Error(err))
		}
		cancel()
	}
	logger.Info("harvest finished",
		zap.String("status", string(snap.Status)),
		zap.Int("attempted", snap.Counters.Attempted),
		zap.Int("found", snap.Counters.Found),
		zap.Int("not_found", snap.Counters.NotFound),
		zap.Int("failed", snap.Counters.Failed),
		zap.Int("documents", snap.Counters.Documents),
		zap.Int("discarded", snap.Counters.Discarded),
		zap.Int("sink_errors", snap.Counters.SinkErrors),
		zap.Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
	)
	if runErr != nil {
		return snap, fmt.Errorf("harvest %s: %w", runID, runErr)
	}
	return snap, nil
}

func (w *Worker) handleRecord(ctx context.Context, logger *zap.Logger, rec crawler.RawRecord) {
	w.update(func(s *Snapshot) {
		s.Counters.Attempted++
		switch rec.Outcome {
		case crawler.OutcomeFound:
			s.Counters.Found++
		case crawler.OutcomeNotFound:
			s.Counters.NotFound++
		case crawler.OutcomeFailed:
			s.Counters.Failed++
		}
	})
	if !rec.Present() {
		return
	}

	doc, err := w.transformer.Assemble(rec)
	if err != nil {
		w.update(func(s *Snapshot) { s.Counters.Discarded++ })
		metrics.ObserveDocument(documentDiscarded)
		logger.Warn("record discarded", zap.Stringer("id", rec.ID), zap.Error(err))
		return
	}

	if err := w.sink.Save(ctx, doc); err != nil {
		w.update(func(s *Snapshot) { s.Counters.SinkErrors++ })
		metrics.ObserveDocument(documentSinkFailed)
		logger.Error("save document failed", zap.String("identifier", doc.Identifier), zap.Error(err))
		return
	}
	w.update(func(s *Snapshot) { s.Counters.Documents++ })
	metrics.ObserveDocument(documentSaved)
	logger.Debug("document saved", zap.String("identifier", doc.Identifier))
}

func (w *Worker) finish(ctx context.Context, runErr error) Snapshot {
	w.update(func(s *Snapshot) {
		s.FinishedAt = w.now()
		s.Status, s.Error = deriveFinalStatus(ctx, s.Counters, runErr)
	})
	return w.Snapshot()
}

func deriveFinalStatus(ctx context.Context, counters Counters, runErr error) (Status, string) {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	if counters.Documents == 0 && errText == "" {
		errText = "no documents were harvested"
	}

	switch {
	case ctx.Err() != nil || errors.Is(runErr, context.Canceled):
		return StatusCanceled, errText
	case counters.Documents == 0:
		return StatusFailed, errText
	default:
		return StatusSucceeded, errText
	}
}

func (w *Worker) update(fn func(*Snapshot)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.snap)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
