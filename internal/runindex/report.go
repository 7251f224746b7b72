package runindex

import (
	"time"

	"github.com/couchcryptid/running-index-service/internal/domain"
)

// NowcastReport is the parsed latest nowcast for a point.
type NowcastReport struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	domain.GridCell
	domain.Base
	Parsed domain.RawObservation `json:"parsed"`
}

// ForecastReport is the parsed latest forecast for a point, one entry per hour.
type ForecastReport struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	domain.GridCell
	domain.Base
	Hourly []domain.ForecastHour `json:"hourly"`
}

// RawInfo describes where a report's data came from.
type RawInfo struct {
	Provider string `json:"provider"`
	domain.Base
	UpdatedAt time.Time `json:"updatedAt"`
}

// HourlyIndex is the running index for one forecast hour.
type HourlyIndex struct {
	At       time.Time `json:"at"`
	FcstDate string    `json:"fcstDate"`
	FcstTime string    `json:"fcstTime"`
	PopPct   *float64  `json:"popPct"`
	domain.SuitabilityResult
	Defaulted []string `json:"defaulted"`
}

// IndexReport is the running index response. In forecast mode the top-level
// result is the earliest hour.
type IndexReport struct {
	Location string          `json:"location"`
	At       time.Time       `json:"at"`
	Mode     Mode            `json:"mode"`
	Request  domain.GeoPoint `json:"request"`
	Cell     domain.GridCell `json:"grid"`
	domain.SuitabilityResult
	Defaulted []string      `json:"defaulted"`
	Raw       RawInfo       `json:"raw"`
	Hourly    []HourlyIndex `json:"hourly,omitempty"`
}
