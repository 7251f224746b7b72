package kma

import (
	"context"
	"errors"

	"github.com/couchcryptid/running-index-service/internal/domain"
)

// Batch is the set of items returned for one base date/time.
type Batch struct {
	Base  domain.Base
	Items []domain.Item
}

// FetchLatest fetches the batch for base and, when it is not yet published,
// resubmits once for the batch issued an hour earlier.
func FetchLatest(ctx context.Context, f Fetcher, product domain.Product, cell domain.GridCell, base domain.Base) (Batch, error) {
	items, err := f.Fetch(ctx, product, cell, base)
	if err == nil {
		return Batch{Base: base, Items: items}, nil
	}
	if !errors.Is(err, ErrNoData) {
		return Batch{}, err
	}

	prev := domain.PreviousBase(base)
	items, err = f.Fetch(ctx, product, cell, prev)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Base: prev, Items: items}, nil
}
