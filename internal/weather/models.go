package weather

import (
	"fmt"
	"time"
)

// Location is a point for which hourly temperatures are fetched.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Key returns a canonical string key for this location. Coordinates are
// rounded to four decimals (~10 m) so loggers placed at the same post
// share one fetch.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f:%.4f", l.Latitude, l.Longitude)
}

// TemperatureSample is one hourly temperature observation or forecast value.
// Time is truncated to the hour.
type TemperatureSample struct {
	Time         time.Time `json:"time"`
	TemperatureC float64   `json:"temperatureC"`
}

// FetchKind distinguishes the two sample horizons.
type FetchKind string

const (
	KindHistorical FetchKind = "historical"
	KindForecast   FetchKind = "forecast"
)
