package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/dispatcher"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/metrics"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/registry"
)

// Config holds the settings for one crawl run.
type Config struct {
	Termination TerminationPolicy
	Absence     AbsencePolicy
	// Concurrency > 1 prefetches that many identifiers at a time. Records are
	// still handed out one by one in identifier order.
	Concurrency    int
	RequestTimeout time.Duration
}

// Crawler walks the identifier sequence and yields one RawRecord per Advance.
// It owns its cursor exclusively and must be driven by a single goroutine; a
// finished crawl is not restartable.
type Crawler struct {
	seq     *registry.Sequencer
	fetcher Fetcher
	retry   RetryPolicy
	cfg     Config
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error

	state     State
	attempted int
	absentRun int
	pending   []RawRecord
}

// New builds a Crawler. A nil termination policy yields an empty crawl and a
// nil retry policy disables retries.
func New(seq *registry.Sequencer, fetcher Fetcher, retry RetryPolicy, cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Termination == nil {
		cfg.Termination = FixedBound{}
	}
	if cfg.Absence == "" {
		cfg.Absence = DefaultAbsencePolicy
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	c := &Crawler{
		seq:     seq,
		fetcher: fetcher,
		retry:   retry,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepContext,
	}
	if cfg.Termination.Done(0, 0) {
		c.state = StateExhausted
	}
	return c
}

// HasMore reports whether Advance may be called again.
func (c *Crawler) HasMore() bool {
	return c.state == StateActive
}

// State returns the current lifecycle state.
func (c *Crawler) State() State {
	return c.state
}

// Attempted returns how many identifiers have been handed out by Advance.
func (c *Crawler) Attempted() int {
	return c.attempted
}

// SizeEstimate returns the configured upper bound on advances, or 0 when the
// crawl ends only on an end-of-data signal.
func (c *Crawler) SizeEstimate() int {
	return c.cfg.Termination.Bound()
}

// Advance fetches the next identifier and returns its record, present or not.
// It fails only when the crawl is exhausted or ctx ends; a canceled crawl is
// exhausted afterwards.
func (c *Crawler) Advance(ctx context.Context) (RawRecord, error) {
	if c.state == StateExhausted {
		return RawRecord{}, ErrExhausted
	}
	if err := ctx.Err(); err != nil {
		c.exhaust("canceled")
		return RawRecord{}, fmt.Errorf("advance: %w", err)
	}
	if len(c.pending) == 0 {
		if err := c.fill(ctx); err != nil {
			c.exhaust("canceled")
			return RawRecord{}, err
		}
	}

	rec := c.pending[0]
	c.pending = c.pending[1:]
	c.attempted++
	c.observe(rec)

	if c.cfg.Termination.Done(c.attempted, c.absentRun) {
		c.exhaust("terminated")
	}
	return rec, nil
}

// fill fetches the next window of identifiers into pending.
func (c *Crawler) fill(ctx context.Context) error {
	n := c.cfg.Concurrency
	if bound := c.cfg.Termination.Bound(); bound > 0 && bound-c.attempted < n {
		n = bound - c.attempted
	}
	if n <= 1 {
		c.pending = append(c.pending, c.fetch(ctx, c.seq.Next()))
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		return nil
	}

	ids := make([]registry.Identifier, n)
	for i := range ids {
		ids[i] = c.seq.Next()
	}
	records, err := dispatcher.Map(ctx, c.cfg.Concurrency, ids, c.fetch)
	if err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	c.pending = append(c.pending, records...)
	return nil
}

// fetch retrieves one identifier, retrying transient failures in place so a
// retried identifier never consumes another sequence position.
func (c *Crawler) fetch(ctx context.Context, id registry.Identifier) RawRecord {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		tree, err := c.fetchOnce(ctx, id)
		if err == nil {
			metrics.ObserveFetch(OutcomeFound.String(), time.Since(start))
			return RawRecord{ID: id, Tree: tree, Outcome: OutcomeFound, Attempts: attempt}
		}

		outcome := classify(err)
		metrics.ObserveFetch(outcome.String(), time.Since(start))
		if !c.shouldRetry(outcome, err, attempt) {
			return RawRecord{ID: id, Outcome: outcome, Err: err, Attempts: attempt}
		}

		wait := c.retry.Backoff(attempt)
		c.logger.Debug("retrying transient fetch failure",
			zap.Stringer("id", id),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		metrics.ObserveRetry()
		if serr := c.sleep(ctx, wait); serr != nil {
			return RawRecord{ID: id, Outcome: OutcomeFailed, Err: serr, Attempts: attempt}
		}
	}
}

func (c *Crawler) fetchOnce(ctx context.Context, id registry.Identifier) (*xmlquery.Node, error) {
	reqCtx := ctx
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	return c.fetcher.Fetch(reqCtx, id)
}

func (c *Crawler) shouldRetry(outcome Outcome, err error, attempt int) bool {
	if c.cfg.Absence != AbsenceSeparated || c.retry == nil {
		return false
	}
	return outcome == OutcomeFailed && c.retry.ShouldRetry(err, attempt)
}

// observe updates the absent run. Under AbsenceSeparated a failed fetch is
// not evidence of end-of-data, so it neither extends nor resets the run.
func (c *Crawler) observe(rec RawRecord) {
	switch {
	case rec.Present():
		c.absentRun = 0
	case rec.Outcome == OutcomeNotFound || c.cfg.Absence == AbsenceConflated:
		c.absentRun++
	}

	fields := []zap.Field{
		zap.Stringer("id", rec.ID),
		zap.Stringer("outcome", rec.Outcome),
		zap.Int("attempts", rec.Attempts),
	}
	if rec.Err != nil && !errors.Is(rec.Err, ErrNotFound) {
		c.logger.Warn("record fetch failed", append(fields, zap.Error(rec.Err))...)
		return
	}
	c.logger.Debug("record advanced", fields...)
}

func (c *Crawler) exhaust(reason string) {
	if c.state == StateExhausted {
		return
	}
	c.state = StateExhausted
	c.pending = nil
	c.logger.Info("crawl exhausted",
		zap.String("reason", reason),
		zap.Int("attempted", c.attempted),
		zap.Int("absent_run", c.absentRun),
	)
}

func classify(err error) Outcome {
	if errors.Is(err, ErrNotFound) {
		return OutcomeNotFound
	}
	return OutcomeFailed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
