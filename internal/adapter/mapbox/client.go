package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/observability"
)

const (
	defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

	// Searches are limited to the area the KMA grid covers.
	country  = "kr"
	language = "ko"
	bbox     = "124.0,32.5,132.0,39.0"

	breakerFailures = 3
	breakerTimeout  = time.Minute

	maxErrorBody = 256
)

// ErrUnavailable means the circuit breaker is rejecting geocode requests.
var ErrUnavailable = errors.New("mapbox: geocoder unavailable")

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[domain.Place]
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newBreaker(logger),
		metrics:    metrics,
		logger:     logger,
	}
}

func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker[domain.Place] {
	return gobreaker.NewCircuitBreaker[domain.Place](gobreaker.Settings{
		Name:        "mapbox",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrPlaceNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mapbox circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Search forward geocodes query to the most relevant place in Korea.
func (c *Client) Search(ctx context.Context, query string) (domain.Place, error) {
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"country":      {country},
		"language":     {language},
		"bbox":         {bbox},
	}
	return c.request(ctx, "forward", url.PathEscape(query), params)
}

// Locate reverse geocodes p to its district or city.
func (c *Client) Locate(ctx context.Context, p domain.GeoPoint) (domain.Place, error) {
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"locality,place"},
		"language":     {language},
	}
	// Mapbox takes lon,lat.
	return c.request(ctx, "reverse", fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat), params)
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values) (domain.Place, error) {
	fullURL := fmt.Sprintf("%s/%s.json?%s", c.baseURL, path, params.Encode())

	start := time.Now()
	place, err := c.breaker.Execute(func() (domain.Place, error) {
		return c.do(ctx, fullURL)
	})
	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.GeocodeRequests.WithLabelValues(method, "success").Inc()
		return place, nil
	case errors.Is(err, domain.ErrPlaceNotFound):
		c.metrics.GeocodeRequests.WithLabelValues(method, "empty").Inc()
		c.logger.Debug("geocode returned no features", "method", method)
		return domain.Place{}, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return domain.Place{}, fmt.Errorf("%s geocode: %w: %w", method, ErrUnavailable, err)
	default:
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return domain.Place{}, fmt.Errorf("%s geocode: %w", method, err)
	}
}

func (c *Client) do(ctx context.Context, fullURL string) (domain.Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Place{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Place{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.Place{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return domain.Place{}, fmt.Errorf("decode response: %w", err)
	}
	return fc.best()
}

// featureCollection is the subset of the Mapbox GeoJSON response we read.
type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	PlaceType []string  `json:"place_type"`
	Relevance float64   `json:"relevance"`
}

// best returns the first feature with a usable center, preferring a
// locality when one is present.
func (fc featureCollection) best() (domain.Place, error) {
	var candidates []feature
	for _, f := range fc.Features {
		if len(f.Center) == 2 {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return domain.Place{}, domain.ErrPlaceNotFound
	}

	chosen := candidates[0]
	for _, f := range candidates {
		if slices.Contains(f.PlaceType, "locality") {
			chosen = f
			break
		}
	}
	return domain.Place{
		Point:     domain.GeoPoint{Lat: chosen.Center[1], Lon: chosen.Center[0]},
		Address:   chosen.PlaceName,
		Locality:  chosen.Text,
		Relevance: chosen.Relevance,
	}, nil
}
