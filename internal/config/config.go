package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/couchcryptid/running-index-service/internal/domain"
)

// DefaultKMABaseURL is the KMA API hub root for the village forecast service.
const DefaultKMABaseURL = "https://apihub.kma.go.kr/api/typ02/openApi/VilageFcstInfoService_2.0"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KMA      KMAConfig
	Neutral  NeutralConfig
	Location LocationConfig
	Poll     PollConfig

	KafkaBrokers       []string
	KafkaSinkTopic     string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// KMAConfig configures the KMA API hub client.
type KMAConfig struct {
	ServiceKey string        `envconfig:"KMA_SERVICE_KEY"`
	BaseURL    string        `envconfig:"KMA_BASE_URL" default:"https://apihub.kma.go.kr/api/typ02/openApi/VilageFcstInfoService_2.0" validate:"required,url"`
	Timeout    time.Duration `envconfig:"KMA_TIMEOUT" default:"8s" validate:"gt=0"`
	CacheSize  int           `envconfig:"KMA_CACHE_SIZE" default:"512" validate:"gte=0"`

	// Fixtures, when set, replays genmock nowcasts instead of calling KMA.
	Fixtures string `envconfig:"KMA_FIXTURES"`
}

// NeutralConfig is the value substituted for each missing reading.
type NeutralConfig struct {
	TemperatureC float64 `envconfig:"NEUTRAL_TEMP_C" default:"10" validate:"gte=-50,lte=50"`
	HumidityPct  float64 `envconfig:"NEUTRAL_HUMIDITY_PCT" default:"50" validate:"gte=0,lte=100"`
	WindSpeedMs  float64 `envconfig:"NEUTRAL_WIND_MS" default:"2" validate:"gte=0,lte=60"`
}

// Defaults converts the configuration into the scoring policy.
func (n NeutralConfig) Defaults() domain.NeutralDefaults {
	return domain.NeutralDefaults{
		TemperatureC: n.TemperatureC,
		HumidityPct:  n.HumidityPct,
		WindSpeedMs:  n.WindSpeedMs,
	}
}

// LocationConfig is the point used when a request names none.
type LocationConfig struct {
	DefaultLat float64 `envconfig:"DEFAULT_LAT" default:"37.5665" validate:"gte=-90,lte=90"`
	DefaultLon float64 `envconfig:"DEFAULT_LON" default:"126.978" validate:"gte=-180,lte=180"`
}

// Point returns the default location.
func (l LocationConfig) Point() domain.GeoPoint {
	return domain.GeoPoint{Lat: l.DefaultLat, Lon: l.DefaultLon}
}

// PollConfig configures the snapshot publishing pipeline.
type PollConfig struct {
	Enabled     bool          `envconfig:"PUBLISH_ENABLED" default:"false"`
	RawPoints   string        `envconfig:"POLL_POINTS" default:"seoul=37.5665:126.978"`
	Interval    time.Duration `envconfig:"POLL_INTERVAL" default:"15m" validate:"gt=0"`
	Concurrency int           `envconfig:"POLL_CONCURRENCY" default:"4" validate:"gte=1,lte=64"`

	Points []domain.PollPoint `ignored:"true"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeoutStr := sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s")
	mapboxTimeout, err2 := time.ParseDuration(mapboxTimeoutStr)
	if err2 != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	mapboxCacheSize, err := parseMapboxCacheSize()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "running-index-snapshots"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
	}

	validate := newValidator()
	for _, section := range []any{&cfg.KMA, &cfg.Neutral, &cfg.Location, &cfg.Poll} {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("parse environment: %w", err)
		}
		if err := validate.Struct(section); err != nil {
			return nil, validationError(err)
		}
	}

	cfg.Poll.Points, err = ParsePollPoints(cfg.Poll.RawPoints)
	if err != nil {
		return nil, err
	}

	if cfg.Poll.Enabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
		if len(cfg.Poll.Points) == 0 {
			return nil, errors.New("POLL_POINTS is required when PUBLISH_ENABLED is true")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// ParsePollPoints parses "name=lat:lon" entries separated by commas.
func ParsePollPoints(s string) ([]domain.PollPoint, error) {
	var points []domain.PollPoint
	seen := make(map[string]bool)

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, coords, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid POLL_POINTS entry %q: want name=lat:lon", part)
		}
		latStr, lonStr, ok := strings.Cut(coords, ":")
		if !ok {
			return nil, fmt.Errorf("invalid POLL_POINTS entry %q: want name=lat:lon", part)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid POLL_POINTS latitude in %q", part)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid POLL_POINTS longitude in %q", part)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate POLL_POINTS name %q", name)
		}
		seen[name] = true

		points = append(points, domain.PollPoint{Name: name, Lat: lat, Lon: lon})
	}
	return points, nil
}

// newValidator reports field errors by their environment variable name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("envconfig")
	})
	return v
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("invalid %s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("validate config: %w", err)
}

func parseMapboxCacheSize() (int, error) {
	s := os.Getenv("MAPBOX_CACHE_SIZE")
	if s == "" {
		return 1000, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid MAPBOX_CACHE_SIZE %q: must be a positive integer", s)
	}
	return n, nil
}
