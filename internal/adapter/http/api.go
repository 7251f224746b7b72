package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/running-index-service/internal/adapter/kma"
	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/runindex"
)

// IndexService is the subset of runindex.Service the API needs.
type IndexService interface {
	Nowcast(ctx context.Context, p domain.GeoPoint) (runindex.NowcastReport, error)
	Forecast(ctx context.Context, p domain.GeoPoint) (runindex.ForecastReport, error)
	RunningIndex(ctx context.Context, q runindex.Query) (runindex.IndexReport, error)
	ResolvePlace(ctx context.Context, place string) (domain.GeoPoint, string, error)
}

// API maps /api requests onto an IndexService.
type API struct {
	service  IndexService
	fallback domain.GeoPoint
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAPI creates an API. fallback is used when a request names no location.
func NewAPI(svc IndexService, fallback domain.GeoPoint, logger *slog.Logger) *API {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("query")
	})
	return &API{service: svc, fallback: fallback, validate: v, logger: logger}
}

// RegisterRoutes mounts the API endpoints.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/grid", a.handleGrid)
	r.Get("/kma/ultra-ncst", a.handleNowcast)
	r.Get("/kma/ultra-fcst", a.handleForecast)
	r.Get("/running-index", a.handleRunningIndex)
}

type locationQuery struct {
	Lat   *float64 `query:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon   *float64 `query:"lon" validate:"omitempty,gte=-180,lte=180"`
	Place string   `query:"place" validate:"max=200"`
}

type indexQuery struct {
	locationQuery
	Mode string   `query:"mode" validate:"omitempty,oneof=now forecast"`
	PM25 *float64 `query:"pm25" validate:"omitempty,gte=0,lte=1000"`
}

// gridResponse mirrors the request point and its cell.
type gridResponse struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	domain.GridCell
}

func (a *API) handleGrid(w http.ResponseWriter, r *http.Request) {
	p, _, ok := a.location(w, r)
	if !ok {
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, gridResponse{Lat: p.Lat, Lon: p.Lon, GridCell: domain.ProjectPoint(p)})
}

func (a *API) handleNowcast(w http.ResponseWriter, r *http.Request) {
	p, _, ok := a.location(w, r)
	if !ok {
		return
	}
	report, err := a.service.Nowcast(r.Context(), p)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

func (a *API) handleForecast(w http.ResponseWriter, r *http.Request) {
	p, _, ok := a.location(w, r)
	if !ok {
		return
	}
	report, err := a.service.Forecast(r.Context(), p)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

func (a *API) handleRunningIndex(w http.ResponseWriter, r *http.Request) {
	var q indexQuery
	if !a.bind(w, r, &q) {
		return
	}
	p, name, ok := a.resolve(w, r, q.locationQuery)
	if !ok {
		return
	}

	report, err := a.service.RunningIndex(r.Context(), runindex.Query{
		Point: p,
		Mode:  runindex.Mode(q.Mode),
		PM25:  q.PM25,
		Name:  name,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

// location binds and resolves the location parameters shared by every route.
func (a *API) location(w http.ResponseWriter, r *http.Request) (domain.GeoPoint, string, bool) {
	var q locationQuery
	if !a.bind(w, r, &q) {
		return domain.GeoPoint{}, "", false
	}
	return a.resolve(w, r, q)
}

// resolve prefers place, then lat/lon, then the configured default. A
// missing coordinate falls back individually.
func (a *API) resolve(w http.ResponseWriter, r *http.Request, q locationQuery) (domain.GeoPoint, string, bool) {
	if place := strings.TrimSpace(q.Place); place != "" {
		p, name, err := a.service.ResolvePlace(r.Context(), place)
		if err != nil {
			a.writeServiceError(w, r, err)
			return domain.GeoPoint{}, "", false
		}
		return p, name, true
	}

	p := a.fallback
	if q.Lat != nil {
		p.Lat = *q.Lat
	}
	if q.Lon != nil {
		p.Lon = *q.Lon
	}
	return p, "", true
}

// bind parses query parameters into dst by their query tags and validates it.
func (a *API) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeQuery(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, kma.ErrMissingAuthKey):
		writeError(w, http.StatusInternalServerError, "KMA_SERVICE_KEY missing")
	case errors.Is(err, runindex.ErrGeocodingDisabled):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, runindex.ErrNoData), errors.Is(err, runindex.ErrPlaceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		a.logger.Error("upstream request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "upstream error: "+err.Error())
	}
}

// decodeQuery fills string and *float64 fields tagged `query` from the URL,
// descending into embedded structs.
func decodeQuery(r *http.Request, dst any) error {
	values := r.URL.Query()
	v := reflect.ValueOf(dst).Elem()
	return decodeInto(values.Get, v)
}

func decodeInto(get func(string) string, v reflect.Value) error {
	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		fv := v.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			if err := decodeInto(get, fv); err != nil {
				return err
			}
			continue
		}
		name := f.Tag.Get("query")
		raw := strings.TrimSpace(get(name))
		if name == "" || raw == "" {
			continue
		}
		switch fv.Interface().(type) {
		case string:
			fv.SetString(raw)
		case *float64:
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: not a number", name)
			}
			fv.Set(reflect.ValueOf(&n))
		}
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Param() == "" {
			return fmt.Sprintf("invalid %s: failed %s", fe.Field(), fe.Tag())
		}
		return fmt.Sprintf("invalid %s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return err.Error()
}
