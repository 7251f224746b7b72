// Package runindex turns a location into KMA observations and running index
// reports. It is shared by the HTTP API and the publishing pipeline.
package runindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/running-index-service/internal/adapter/kma"
	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/observability"
)

const provider = "KMA"

var (
	// ErrNoData means neither the current nor the previous batch had items.
	ErrNoData = errors.New("no KMA data for this location")

	// ErrGeocodingDisabled means a place name was given but no geocoder is configured.
	ErrGeocodingDisabled = errors.New("place lookup is not enabled")

	// ErrPlaceNotFound means the geocoder returned no match.
	ErrPlaceNotFound = errors.New("place not found")
)

// Mode selects the data behind a running index report.
type Mode string

const (
	ModeNow      Mode = "now"
	ModeForecast Mode = "forecast"
)

// Service orchestrates projection, fetching, parsing and scoring.
type Service struct {
	fetcher  kma.Fetcher
	geocoder domain.Geocoder
	defaults domain.NeutralDefaults
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService creates a Service. geocoder may be nil.
func NewService(fetcher kma.Fetcher, geocoder domain.Geocoder, defaults domain.NeutralDefaults, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		fetcher:  fetcher,
		geocoder: geocoder,
		defaults: defaults,
		logger:   logger,
		metrics:  metrics,
	}
}

// GeocodingEnabled reports whether place names can be resolved.
func (s *Service) GeocodingEnabled() bool {
	return s.geocoder != nil
}

// ResolvePlace forward geocodes a place query.
func (s *Service) ResolvePlace(ctx context.Context, place string) (domain.GeoPoint, string, error) {
	if s.geocoder == nil {
		return domain.GeoPoint{}, "", ErrGeocodingDisabled
	}
	found, err := s.geocoder.Search(ctx, place)
	if errors.Is(err, domain.ErrPlaceNotFound) {
		return domain.GeoPoint{}, "", fmt.Errorf("%w: %q", ErrPlaceNotFound, place)
	}
	if err != nil {
		return domain.GeoPoint{}, "", fmt.Errorf("geocode %q: %w", place, err)
	}
	return found.Point, found.Label(), nil
}

// Nowcast fetches and parses the latest ultra short-term nowcast.
func (s *Service) Nowcast(ctx context.Context, p domain.GeoPoint) (NowcastReport, error) {
	cell := domain.ProjectPoint(p)
	batch, err := s.fetch(ctx, domain.ProductNowcast, cell)
	if err != nil {
		return NowcastReport{}, err
	}

	raw, issues := domain.ParseNowcastItems(batch.Items)
	s.reportIssues(domain.ProductNowcast, cell, batch.Base, issues)

	return NowcastReport{
		Lat:      p.Lat,
		Lon:      p.Lon,
		GridCell: cell,
		Base:     batch.Base,
		Parsed:   raw,
	}, nil
}

// Forecast fetches and parses the latest ultra short-term forecast.
func (s *Service) Forecast(ctx context.Context, p domain.GeoPoint) (ForecastReport, error) {
	cell := domain.ProjectPoint(p)
	batch, err := s.fetch(ctx, domain.ProductForecast, cell)
	if err != nil {
		return ForecastReport{}, err
	}

	hours, issues := domain.ParseForecastItems(batch.Items)
	s.reportIssues(domain.ProductForecast, cell, batch.Base, issues)

	return ForecastReport{
		Lat:      p.Lat,
		Lon:      p.Lon,
		GridCell: cell,
		Base:     batch.Base,
		Hourly:   hours,
	}, nil
}

// Query describes a running index request.
type Query struct {
	Point domain.GeoPoint
	Mode  Mode
	PM25  *float64
	// Name is the resolved place name, if the caller already has one.
	Name string
}

// RunningIndex scores the nowcast, or every forecast hour, for a point. The
// place name is reverse geocoded alongside the KMA fetch when possible.
func (s *Service) RunningIndex(ctx context.Context, q Query) (IndexReport, error) {
	if q.Mode == "" {
		q.Mode = ModeNow
	}
	cell := domain.ProjectPoint(q.Point)

	var (
		nowcast  NowcastReport
		forecast ForecastReport
		name     = q.Name
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if q.Mode == ModeForecast {
			forecast, err = s.Forecast(gctx, q.Point)
		} else {
			nowcast, err = s.Nowcast(gctx, q.Point)
		}
		return err
	})
	if name == "" && s.geocoder != nil {
		g.Go(func() error {
			name = s.reverseName(gctx, q.Point)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IndexReport{}, err
	}

	if name == "" {
		name = fmt.Sprintf("%.4f, %.4f", q.Point.Lat, q.Point.Lon)
	}

	report := IndexReport{
		Location: name,
		Request:  q.Point,
		Cell:     cell,
		Mode:     q.Mode,
		Raw: RawInfo{
			Provider:  provider,
			UpdatedAt: domain.Now().UTC(),
		},
	}

	switch q.Mode {
	case ModeForecast:
		if len(forecast.Hourly) == 0 {
			return IndexReport{}, fmt.Errorf("%w: forecast has no hours", ErrNoData)
		}
		report.Raw.Base = forecast.Base
		report.Hourly = make([]HourlyIndex, 0, len(forecast.Hourly))
		for _, h := range forecast.Hourly {
			raw := h.RawObservation
			raw.PM25 = q.PM25
			obs := s.defaults.Apply(raw)
			report.Hourly = append(report.Hourly, HourlyIndex{
				At:                h.At,
				FcstDate:          h.FcstDate,
				FcstTime:          h.FcstTime,
				PopPct:            h.PopPct,
				Defaulted:         obs.DefaultedFields(),
				SuitabilityResult: domain.Score(obs),
			})
		}
		first := report.Hourly[0]
		report.At = first.At
		report.SuitabilityResult = first.SuitabilityResult
		report.Defaulted = first.Defaulted
	default:
		raw := nowcast.Parsed
		raw.PM25 = q.PM25
		obs := s.defaults.Apply(raw)
		report.Raw.Base = nowcast.Base
		report.At = nowcast.Base.Instant()
		report.SuitabilityResult = domain.Score(obs)
		report.Defaulted = obs.DefaultedFields()
	}

	s.metrics.Scores.WithLabelValues(string(report.Grade)).Inc()
	return report, nil
}

// Snapshot scores the latest nowcast for a poll point.
func (s *Service) Snapshot(ctx context.Context, p domain.PollPoint) (domain.Snapshot, error) {
	point := domain.GeoPoint{Lat: p.Lat, Lon: p.Lon}
	nc, err := s.Nowcast(ctx, point)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.NewSnapshot(p, nc.GridCell, nc.Base, s.defaults.Apply(nc.Parsed))
	s.metrics.Scores.WithLabelValues(string(snap.Result.Grade)).Inc()
	return snap, nil
}

func (s *Service) fetch(ctx context.Context, product domain.Product, cell domain.GridCell) (kma.Batch, error) {
	base := domain.CurrentBase(product)
	batch, err := kma.FetchLatest(ctx, s.fetcher, product, cell, base)
	if errors.Is(err, kma.ErrNoData) {
		return kma.Batch{}, fmt.Errorf("%w: %s nx=%d ny=%d base=%s", ErrNoData, product, cell.NX, cell.NY, base)
	}
	if err != nil {
		return kma.Batch{}, fmt.Errorf("fetch %s: %w", product, err)
	}
	if batch.Base != base {
		s.logger.Debug("kma fell back to previous base",
			"endpoint", string(product),
			"base_date", batch.Base.Date,
			"base_time", batch.Base.Time,
		)
	}
	return batch, nil
}

// reportIssues is the single place unparseable provider values are logged
// and counted.
func (s *Service) reportIssues(product domain.Product, cell domain.GridCell, base domain.Base, issues []domain.ParseIssue) {
	if len(issues) == 0 {
		return
	}
	values := make([]string, 0, len(issues))
	for _, is := range issues {
		values = append(values, is.Category+"="+is.Raw)
	}
	s.metrics.PrecipParseFailures.Add(float64(len(issues)))
	s.logger.Warn("unparseable precipitation values",
		"endpoint", string(product),
		"nx", cell.NX,
		"ny", cell.NY,
		"base_date", base.Date,
		"base_time", base.Time,
		"values", strings.Join(values, ","),
	)
}

func (s *Service) reverseName(ctx context.Context, p domain.GeoPoint) string {
	place, err := s.geocoder.Locate(ctx, p)
	switch {
	case errors.Is(err, domain.ErrPlaceNotFound):
		return ""
	case err != nil:
		s.logger.Warn("reverse geocode failed", "lat", p.Lat, "lon", p.Lon, "error", err)
		return ""
	}
	return place.Label()
}
