package domain

import (
	"context"
	"errors"
)

// ErrPlaceNotFound is returned by a Geocoder when no place matches.
var ErrPlaceNotFound = errors.New("place not found")

// Place is a geocoded location.
type Place struct {
	Point     GeoPoint `json:"point"`
	Address   string   `json:"address"`  // e.g. "중구, 서울특별시, 대한민국"
	Locality  string   `json:"locality"` // e.g. "중구"
	Relevance float64  `json:"relevance"`
}

// Label is the text shown for the place: the full address when known.
func (p Place) Label() string {
	if p.Address != "" {
		return p.Address
	}
	return p.Locality
}

// Geocoder resolves place names in both directions.
type Geocoder interface {
	// Search finds the best match for a free-text query.
	Search(ctx context.Context, query string) (Place, error)

	// Locate names the place containing p.
	Locate(ctx context.Context, p GeoPoint) (Place, error)
}
