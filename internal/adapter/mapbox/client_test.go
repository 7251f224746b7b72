package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/observability"
)

const testToken = "test-token"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	c := NewClient(testToken, 5*time.Second, discardLogger(), testMetrics())
	c.baseURL = baseURL
	return c
}

func serveFeatures(t *testing.T, features ...feature) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(featureCollection{Features: features}))
	}
}

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Contains(t, r.URL.Path, "해운대")
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, "kr", q.Get("country"))
		assert.Equal(t, "ko", q.Get("language"))
		assert.Equal(t, bbox, q.Get("bbox"))
		assert.Equal(t, testToken, q.Get("access_token"))

		serveFeatures(t, feature{
			Center:    []float64{129.1604, 35.1631},
			PlaceName: "해운대구, 부산광역시, 대한민국",
			Text:      "해운대구",
			PlaceType: []string{"locality"},
			Relevance: 0.95,
		})(w, r)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	place, err := c.Search(context.Background(), "해운대")
	require.NoError(t, err)

	assert.Equal(t, domain.Place{
		Point:     domain.GeoPoint{Lat: 35.1631, Lon: 129.1604},
		Address:   "해운대구, 부산광역시, 대한민국",
		Locality:  "해운대구",
		Relevance: 0.95,
	}, place)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("forward", "success")), 0)
}

func TestClient_Locate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "126.978000,37.566500", "mapbox expects lon,lat")
		assert.Equal(t, "locality,place", r.URL.Query().Get("types"))
		serveFeatures(t,
			feature{Center: []float64{126.98, 37.56}, PlaceName: "서울특별시, 대한민국", Text: "서울특별시", PlaceType: []string{"place"}, Relevance: 1},
			feature{Center: []float64{126.978, 37.5665}, PlaceName: "중구, 서울특별시, 대한민국", Text: "중구", PlaceType: []string{"locality"}, Relevance: 0.98},
		)(w, r)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	place, err := c.Locate(context.Background(), domain.GeoPoint{Lat: 37.5665, Lon: 126.978})
	require.NoError(t, err)

	assert.Equal(t, "중구, 서울특별시, 대한민국", place.Label(), "locality preferred over the city")
	assert.Equal(t, "중구", place.Locality)
}

func TestClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(serveFeatures(t,
		feature{PlaceName: "no center", Text: "?"},
	))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Search(context.Background(), "NONEXISTENT")
	require.ErrorIs(t, err, domain.ErrPlaceNotFound)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("forward", "empty")), 0)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Search(context.Background(), "서울")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.NotErrorIs(t, err, domain.ErrPlaceNotFound)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("forward", "error")), 0)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.Search(context.Background(), "서울")
	require.Error(t, err)
}

func TestClient_BreakerOpensOnRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for range breakerFailures {
		_, err := c.Search(context.Background(), "서울")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := c.Search(context.Background(), "서울")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(breakerFailures), hits.Load(), "open breaker must not reach the API")
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(serveFeatures(t))
	defer srv.Close()

	c := testClient(srv.URL)
	for range breakerFailures + 2 {
		_, err := c.Search(context.Background(), "없는곳")
		require.ErrorIs(t, err, domain.ErrPlaceNotFound)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(testToken, 3*time.Second, discardLogger(), testMetrics())
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
}
