package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type AppConfig struct {
	Port        string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s" validate:"min=1s"`

	// TimeZoneName is the IANA zone in which calendar dates and the
	// day/night offset window are evaluated.
	TimeZoneName string         `envconfig:"TIMEZONE" default:"Europe/Oslo" validate:"required"`
	TimeZone     *time.Location `ignored:"true" validate:"-"`

	// RefreshInterval controls how often running loggers are refreshed.
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"1m" validate:"min=1s"`
	RefreshCooldown time.Duration `envconfig:"REFRESH_COOLDOWN" default:"2m" validate:"min=0s"`

	HistoryCacheTTL  time.Duration `envconfig:"HISTORY_CACHE_TTL" default:"24h" validate:"min=0s"`
	ForecastCacheTTL time.Duration `envconfig:"FORECAST_CACHE_TTL" default:"30m" validate:"min=0s"`
	MinCallSpacing   time.Duration `envconfig:"MIN_CALL_SPACING" default:"1s" validate:"min=0s"`
	ForecastDays     int           `envconfig:"FORECAST_DAYS" default:"7" validate:"min=1,max=16"`

	WeatherAPIKey  string `envconfig:"WEATHERAPI_API_KEY"`
	GeocoderAPIKey string `envconfig:"GEOCODER_API_KEY"`

	// DatabaseURL enables the PostgreSQL store; empty means local cache only.
	DatabaseURL    string `envconfig:"DATABASE_URL" validate:"omitempty,url"`
	LocalCachePath string `envconfig:"LOCAL_CACHE_PATH" default:"data/loggers.json.zst"`

	// MQTTBroker enables progress publishing, e.g. tcp://localhost:1883.
	MQTTBroker      string `envconfig:"MQTT_BROKER" validate:"omitempty,url"`
	MQTTClientID    string `envconfig:"MQTT_CLIENT_ID" default:"degreeday-logger"`
	MQTTTopicPrefix string `envconfig:"MQTT_TOPIC_PREFIX" default:"hunt/dglogger" validate:"required"`

	DefaultLatitude  float64 `envconfig:"DEFAULT_LATITUDE" default:"60.7249" validate:"gte=-90,lte=90"`
	DefaultLongitude float64 `envconfig:"DEFAULT_LONGITUDE" default:"9.0365" validate:"gte=-180,lte=180"`
	DefaultTarget    float64 `envconfig:"DEFAULT_TARGET" default:"40" validate:"gt=0"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// Load reads configuration from the environment, after merging any .env
// files (the working directory's .env when none are named).
func Load(files ...string) (*AppConfig, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to parse environment", Err: err}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "invalid configuration", Err: err}
	}

	loc, err := time.LoadLocation(cfg.TimeZoneName)
	if err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: fmt.Sprintf("unknown TIMEZONE %q", cfg.TimeZoneName), Err: err}
	}
	cfg.TimeZone = loc

	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
