package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/observability"
	"github.com/couchcryptid/running-index-service/internal/pipeline"
)

// --- mocks ---

type mockTransformer struct {
	failFor  map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (m *mockTransformer) Transform(ctx context.Context, p domain.PollPoint) (domain.OutputEvent, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.OutputEvent{}, ctx.Err()
		}
	}
	if m.failFor[p.Name] {
		return domain.OutputEvent{}, fmt.Errorf("kma: no data for %s", p.Name)
	}
	return domain.OutputEvent{Key: []byte(p.Name), Value: []byte(`{}`)}, nil
}

type mockLoader struct {
	mu       sync.Mutex
	failures int
	attempts int
	loaded   []domain.OutputEvent
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.attempts <= m.failures {
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.loaded))
	for _, e := range m.loaded {
		keys = append(keys, string(e.Key))
	}
	return keys
}

func (m *mockLoader) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pollPoints(names ...string) []domain.PollPoint {
	points := make([]domain.PollPoint, 0, len(names))
	for i, n := range names {
		points = append(points, domain.PollPoint{Name: n, Lat: 35 + float64(i)*0.5, Lon: 127})
	}
	return points
}

// --- tests ---

func TestPipeline_RunOnce_HappyPath(t *testing.T) {
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(pollPoints("seoul", "busan", "jeju"), &mockTransformer{}, ldr, discardLogger(), metrics, 2)

	require.NoError(t, p.RunOnce(context.Background()))

	if diff := cmp.Diff([]string{"seoul", "busan", "jeju"}, ldr.keys()); diff != "" {
		t.Fatalf("published keys mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, p.Ready())
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.SnapshotsPublished), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.PollCycleDuration))
}

func TestPipeline_RunOnce_SkipsFailingPoints(t *testing.T) {
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	tfm := &mockTransformer{failFor: map[string]bool{"busan": true}}
	p := pipeline.New(pollPoints("seoul", "busan", "jeju"), tfm, ldr, discardLogger(), metrics, 4)

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, []string{"seoul", "jeju"}, ldr.keys())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PollErrors), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.SnapshotsPublished), 0)
}

func TestPipeline_RunOnce_AllPointsFail(t *testing.T) {
	ldr := &mockLoader{}
	tfm := &mockTransformer{failFor: map[string]bool{"seoul": true, "busan": true}}
	p := pipeline.New(pollPoints("seoul", "busan"), tfm, ldr, discardLogger(), newTestMetrics(), 2)

	err := p.RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, ldr.attemptCount(), "nothing to load")
	assert.False(t, p.Ready())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_RunOnce_BoundsConcurrency(t *testing.T) {
	tfm := &mockTransformer{delay: 20 * time.Millisecond}
	p := pipeline.New(pollPoints("a", "b", "c", "d", "e", "f"), tfm, &mockLoader{}, discardLogger(), newTestMetrics(), 2)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.LessOrEqual(t, tfm.maxSeen.Load(), int32(2))
	assert.Positive(t, tfm.maxSeen.Load())
}

func TestPipeline_RunOnce_RetriesLoadWithBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ldr := &mockLoader{failures: 2}
	p := pipeline.New(pollPoints("seoul"), &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 1, pipeline.WithClock(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.RunOnce(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(400 * time.Millisecond)

	require.NoError(t, <-done)
	assert.Equal(t, 3, ldr.attemptCount())
	assert.Equal(t, []string{"seoul"}, ldr.keys())
}

func TestPipeline_RunOnce_GivesUpAfterThreeAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ldr := &mockLoader{failures: 10}
	p := pipeline.New(pollPoints("seoul"), &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 1, pipeline.WithClock(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.RunOnce(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(400 * time.Millisecond)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, ldr.attemptCount())
	assert.False(t, p.Ready())
}

func TestPipeline_RunOnce_CancelledDuringBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ldr := &mockLoader{failures: 10}
	p := pipeline.New(pollPoints("seoul"), &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 1, pipeline.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.RunOnce(ctx) }()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, ldr.attemptCount())
}

func TestPipeline_Run_PublishesUntilCancelled(t *testing.T) {
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(pollPoints("seoul"), &mockTransformer{}, ldr, discardLogger(), metrics, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx, 50*time.Millisecond))

	assert.GreaterOrEqual(t, len(ldr.keys()), 2)
	assert.True(t, p.Ready())
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(pollPoints("seoul"), &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx, time.Minute))
	assert.Empty(t, ldr.keys())
}

// --- transformer ---

type fakeSource struct {
	snap domain.Snapshot
	err  error
}

func (f *fakeSource) Snapshot(_ context.Context, _ domain.PollPoint) (domain.Snapshot, error) {
	return f.snap, f.err
}

func TestSnapshotTransformer_Transform(t *testing.T) {
	processed := time.Date(2026, 1, 15, 9, 5, 0, 0, time.UTC)
	snap := domain.Snapshot{
		ID:          "0123456789abcdef",
		Name:        "seoul",
		Result:      domain.SuitabilityResult{Score: 90, Grade: domain.GradeGreat},
		ProcessedAt: processed,
	}
	tfm := pipeline.NewTransformer(&fakeSource{snap: snap})

	out, err := tfm.Transform(context.Background(), domain.PollPoint{Name: "seoul"})
	require.NoError(t, err)

	assert.Equal(t, []byte("0123456789abcdef"), out.Key)
	assert.Contains(t, string(out.Value), `"name":"seoul"`)
	assert.Equal(t, "GREAT", out.Headers["grade"])
	assert.Equal(t, "2026-01-15T09:05:00Z", out.Headers["processed_at"])
}

func TestSnapshotTransformer_PropagatesErrors(t *testing.T) {
	tfm := pipeline.NewTransformer(&fakeSource{err: errors.New("kma unavailable")})
	_, err := tfm.Transform(context.Background(), domain.PollPoint{Name: "seoul"})
	assert.Error(t, err)
}
