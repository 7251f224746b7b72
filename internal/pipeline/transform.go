package pipeline

import (
	"context"

	"github.com/couchcryptid/running-index-service/internal/domain"
)

// SnapshotSource scores the latest nowcast for a poll point.
type SnapshotSource interface {
	Snapshot(ctx context.Context, p domain.PollPoint) (domain.Snapshot, error)
}

// SnapshotTransformer implements Transformer by scoring a point and
// serializing the resulting snapshot.
type SnapshotTransformer struct {
	source SnapshotSource
}

// NewTransformer creates a SnapshotTransformer.
func NewTransformer(source SnapshotSource) *SnapshotTransformer {
	return &SnapshotTransformer{source: source}
}

func (t *SnapshotTransformer) Transform(ctx context.Context, p domain.PollPoint) (domain.OutputEvent, error) {
	snap, err := t.source.Snapshot(ctx, p)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.SerializeSnapshot(snap)
}
