package kma

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/couchcryptid/running-index-service/internal/domain"
)

// Fixture is a recorded nowcast envelope for one point together with the
// running index it produces under the default neutral values.
type Fixture struct {
	Name     string          `json:"name"`
	Lat      float64         `json:"lat"`
	Lon      float64         `json:"lon"`
	Cell     domain.GridCell `json:"grid"`
	Base     domain.Base     `json:"base"`
	Response Response        `json:"response"`
	Expected Expectation     `json:"expected"`
}

// Expectation is the scored outcome recorded with a fixture.
type Expectation struct {
	Score     int          `json:"score"`
	Grade     domain.Grade `json:"grade"`
	Defaulted []string     `json:"defaulted"`
	Advice    []string     `json:"advice"`
}

// LoadFixtures reads a JSON array of fixtures.
func LoadFixtures(path string) ([]Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []Fixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("decode fixtures %s: %w", path, err)
	}
	return fixtures, nil
}

// FixtureFetcher replays recorded nowcasts by grid cell. The requested base
// is ignored so fixtures serve at any time. Forecasts are never recorded.
type FixtureFetcher struct {
	byCell map[domain.GridCell][]domain.Item
}

// NewFixtureFetcher indexes fixtures by their grid cell. A later fixture for
// the same cell wins.
func NewFixtureFetcher(fixtures []Fixture) *FixtureFetcher {
	byCell := make(map[domain.GridCell][]domain.Item, len(fixtures))
	for _, f := range fixtures {
		byCell[f.Cell] = f.Response.Response.Body.Items.Item
	}
	return &FixtureFetcher{byCell: byCell}
}

func (f *FixtureFetcher) Fetch(_ context.Context, product domain.Product, cell domain.GridCell, _ domain.Base) ([]domain.Item, error) {
	if product != domain.ProductNowcast {
		return nil, ErrNoData
	}
	items := f.byCell[cell]
	if len(items) == 0 {
		return nil, ErrNoData
	}
	return items, nil
}

// CheckReadiness always succeeds; fixtures need no provider.
func (f *FixtureFetcher) CheckReadiness(_ context.Context) error {
	return nil
}
