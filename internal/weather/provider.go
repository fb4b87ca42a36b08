package weather

import (
	"context"
	"time"
)

// SampleProvider abstracts an hourly temperature source (e.g. Open-Meteo, WeatherAPI).
type SampleProvider interface {
	Name() string

	// FetchHistorical returns hourly samples for the calendar dates from..to
	// (inclusive). Callers never ask for the current date here.
	FetchHistorical(ctx context.Context, loc Location, from, to time.Time) ([]TemperatureSample, error)

	// FetchForecastAndToday returns every hour of the current date from 00:00,
	// including elapsed hours, followed by the forecast hours.
	FetchForecastAndToday(ctx context.Context, loc Location) ([]TemperatureSample, error)
}
