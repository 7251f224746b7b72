package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/observability"
	"github.com/couchcryptid/running-index-service/internal/scheduler"
)

// Transformer turns a poll point into a serialized snapshot.
type Transformer interface {
	Transform(ctx context.Context, p domain.PollPoint) (domain.OutputEvent, error)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

const (
	initialBackoff  = 200 * time.Millisecond
	maxBackoff      = 5 * time.Second
	maxLoadAttempts = 3
)

// Pipeline scores every poll point on a schedule and publishes the snapshots.
type Pipeline struct {
	points      []domain.PollPoint
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	concurrency int
	clock       clockwork.Clock
	ready       atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for backoff sleeps and cycle timing.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New creates a Pipeline. concurrency bounds in-flight KMA requests per cycle.
func New(points []domain.PollPoint, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, concurrency int, opts ...Option) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &Pipeline{
		points:      points,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		concurrency: concurrency,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a cycle has published at least one snapshot.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not published any snapshots yet")
	}
	return nil
}

// Ready reports whether a cycle has published.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// Run polls immediately and then every interval until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	sched := scheduler.New(p.logger)
	if err := sched.Every(ctx, "snapshot-poll", interval, p.RunOnce); err != nil {
		return err
	}

	p.logger.Info("pipeline started",
		"points", len(p.points),
		"interval", interval,
		"concurrency", p.concurrency,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	sched.Start()
	<-ctx.Done()
	sched.Stop()

	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// RunOnce scores every point and publishes the successes as one batch.
// A failing point is logged and skipped.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	start := p.clock.Now()

	batch := p.transformAll(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(batch) == 0 {
		return fmt.Errorf("poll cycle produced no snapshots for %d points", len(p.points))
	}

	if err := p.loadWithRetry(ctx, batch); err != nil {
		return err
	}

	p.metrics.SnapshotsPublished.Add(float64(len(batch)))
	p.metrics.PollCycleDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Info("poll cycle published",
		"snapshots", len(batch),
		"skipped", len(p.points)-len(batch),
	)
	return nil
}

// transformAll fans out over the points. Output keeps the configured point order.
func (p *Pipeline) transformAll(ctx context.Context) []domain.OutputEvent {
	results := make([]*domain.OutputEvent, len(p.points))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, pt := range p.points {
		g.Go(func() error {
			out, err := p.transformer.Transform(ctx, pt)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("snapshot failed, skipping point", "point", pt.Name, "error", err)
					p.metrics.PollErrors.Inc()
				}
				return nil
			}
			results[i] = &out
			return nil
		})
	}
	_ = g.Wait()

	batch := make([]domain.OutputEvent, 0, len(results))
	for _, r := range results {
		if r != nil {
			batch = append(batch, *r)
		}
	}
	return batch
}

// loadWithRetry retries with exponential backoff: 200ms doubling, capped at 5s.
func (p *Pipeline) loadWithRetry(ctx context.Context, batch []domain.OutputEvent) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= maxLoadAttempts; attempt++ {
		if err = p.loader.LoadBatch(ctx, batch); err == nil {
			return nil
		}
		p.logger.Error("load batch failed", "error", err, "attempt", attempt, "batch_size", len(batch))
		if attempt == maxLoadAttempts {
			break
		}
		if !sleepWithContext(ctx, p.clock, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("load %d snapshots after %d attempts: %w", len(batch), maxLoadAttempts, err)
}

// sleepWithContext mirrors retry.SleepWithContext on an injectable clock.
func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
