package kma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/observability"
)

const (
	pageNo    = "1"
	numOfRows = "1000"

	// breakerFailures consecutive transport or server failures open the breaker.
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
	breakerInterval = 60 * time.Second

	maxErrorBody = 512
)

// Outcome labels for kma_requests_total.
const (
	outcomeSuccess     = "success"
	outcomeNoData      = "no_data"
	outcomeError       = "error"
	outcomeUnavailable = "unavailable"
)

// Fetcher retrieves the items of one KMA batch for a grid cell.
type Fetcher interface {
	Fetch(ctx context.Context, product domain.Product, cell domain.GridCell, base domain.Base) ([]domain.Item, error)
}

// Client calls the KMA API hub village forecast service.
type Client struct {
	serviceKey string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]domain.Item]
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a KMA client. An empty service key is allowed so the
// service can start; every fetch then fails with ErrMissingAuthKey.
func NewClient(serviceKey, baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		serviceKey: serviceKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newBreaker("kma", logger),
		logger:     logger,
		metrics:    metrics,
	}
}

func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker[[]domain.Item] {
	return gobreaker.NewCircuitBreaker[[]domain.Item](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("kma circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// isBreakerSuccess keeps empty batches, caller mistakes and requests the
// caller abandoned from opening the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.ServerSide()
	}
	return false
}

// Fetch requests one batch. It returns ErrNoData when the batch is empty.
func (c *Client) Fetch(ctx context.Context, product domain.Product, cell domain.GridCell, base domain.Base) ([]domain.Item, error) {
	if c.serviceKey == "" {
		return nil, ErrMissingAuthKey
	}

	endpoint := string(product)
	start := time.Now()
	items, err := c.breaker.Execute(func() ([]domain.Item, error) {
		return c.doRequest(ctx, product, cell, base)
	})
	c.metrics.KMARequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.KMARequests.WithLabelValues(endpoint, outcomeSuccess).Inc()
		return items, nil
	case errors.Is(err, ErrNoData):
		c.metrics.KMARequests.WithLabelValues(endpoint, outcomeNoData).Inc()
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.KMARequests.WithLabelValues(endpoint, outcomeUnavailable).Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		c.metrics.KMARequests.WithLabelValues(endpoint, outcomeError).Inc()
		c.logger.Warn("kma request failed",
			"endpoint", endpoint,
			"nx", cell.NX,
			"ny", cell.NY,
			"base_date", base.Date,
			"base_time", base.Time,
			"error", err,
		)
		return nil, err
	}
}

// CheckReadiness reports whether requests can currently be made.
func (c *Client) CheckReadiness(_ context.Context) error {
	if c.serviceKey == "" {
		return ErrMissingAuthKey
	}
	if c.breaker.State() == gobreaker.StateOpen {
		return ErrUnavailable
	}
	return nil
}

func (c *Client) requestURL(product domain.Product, cell domain.GridCell, base domain.Base) string {
	params := url.Values{
		"authKey":   {c.serviceKey},
		"pageNo":    {pageNo},
		"numOfRows": {numOfRows},
		"dataType":  {"JSON"},
		"base_date": {base.Date},
		"base_time": {base.Time},
		"nx":        {strconv.Itoa(cell.NX)},
		"ny":        {strconv.Itoa(cell.NY)},
	}
	return c.baseURL + "/" + product.Operation() + "?" + params.Encode()
}

func (c *Client) doRequest(ctx context.Context, product domain.Product, cell domain.GridCell, base domain.Base) ([]domain.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(product, cell, base), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.logger.Debug("kma request",
		"endpoint", string(product),
		"nx", cell.NX,
		"ny", cell.NY,
		"base_date", base.Date,
		"base_time", base.Time,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", product, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("kma API error: status %d: %s", resp.StatusCode, body)
	}

	var kmaResp Response
	if err := json.NewDecoder(resp.Body).Decode(&kmaResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	header := kmaResp.Response.Header
	switch header.ResultCode {
	case ResultOK, "":
	case ResultNoData:
		return nil, ErrNoData
	default:
		return nil, &APIError{Code: header.ResultCode, Message: header.ResultMsg}
	}

	items := kmaResp.Response.Body.Items.Item
	if len(items) == 0 {
		return nil, ErrNoData
	}
	return items, nil
}
