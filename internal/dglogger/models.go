package dglogger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/degreeday-logger/internal/degreeday"
	"github.com/i474232898/degreeday-logger/internal/weather"
)

var (
	// ErrNotFound is returned for an unknown logger id.
	ErrNotFound = errors.New("logger not found")
	// ErrMissingStartTime is returned when a start clock is set before any start date.
	ErrMissingStartTime = errors.New("logger has no start time")
	// ErrInvalidInput is returned for rejected field values.
	ErrInvalidInput = errors.New("invalid logger input")
)

// Logger is one meat-aging tracker with its own place, target and series.
type Logger struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	TargetDegreeDays float64 `json:"targetDegreeDays"`
	DayOffset        float64 `json:"dayOffset"`
	NightOffset      float64 `json:"nightOffset"`
	BaseTemperature  float64 `json:"baseTemperature"`

	IsRunning bool       `json:"isRunning"`
	StartTime *time.Time `json:"startTime"`

	DataTable             []degreeday.DataPoint `json:"dataTable"`
	AccumulatedDegreeDays float64               `json:"accumulatedDegreeDays"`
	EstimatedFinishTime   *time.Time            `json:"estimatedFinishTime"`
	FinishReached         bool                  `json:"finishReached"`
	LastFetchedAt         *time.Time            `json:"lastFetchedAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Location returns the logger's coordinates.
func (l Logger) Location() weather.Location {
	return weather.Location{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Params returns the engine inputs for the logger's current state.
func (l Logger) Params() degreeday.Params {
	p := degreeday.Params{
		BaseTemperature:  l.BaseTemperature,
		DayOffset:        l.DayOffset,
		NightOffset:      l.NightOffset,
		TargetDegreeDays: l.TargetDegreeDays,
	}
	if l.StartTime != nil {
		p.StartTime = *l.StartTime
	}
	return p
}

// Clone returns a deep copy safe to hand out of the manager.
func (l Logger) Clone() Logger {
	c := l
	c.StartTime = cloneTime(l.StartTime)
	c.EstimatedFinishTime = cloneTime(l.EstimatedFinishTime)
	c.LastFetchedAt = cloneTime(l.LastFetchedAt)
	if l.DataTable != nil {
		c.DataTable = make([]degreeday.DataPoint, len(l.DataTable))
		copy(c.DataTable, l.DataTable)
	}
	return c
}

// resetState returns the logger to its just-created lifecycle state.
func (l *Logger) resetState() {
	l.DataTable = []degreeday.DataPoint{}
	l.AccumulatedDegreeDays = 0
	l.EstimatedFinishTime = nil
	l.FinishReached = false
	l.LastFetchedAt = nil
	l.IsRunning = false
	l.StartTime = nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CreateInput holds the fields accepted when creating a logger. Nil fields
// take the manager defaults.
type CreateInput struct {
	Name             string
	Latitude         *float64
	Longitude        *float64
	Place            string
	TargetDegreeDays *float64
	DayOffset        float64
	NightOffset      float64
	BaseTemperature  float64
	StartTime        *time.Time
}

// UpdateInput carries the editable fields; nil means unchanged.
type UpdateInput struct {
	Name             *string
	TargetDegreeDays *float64
	DayOffset        *float64
	NightOffset      *float64
	BaseTemperature  *float64
}

func (in UpdateInput) validate() error {
	if in.Name != nil && *in.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if in.TargetDegreeDays != nil && *in.TargetDegreeDays <= 0 {
		return fmt.Errorf("%w: target must be positive", ErrInvalidInput)
	}
	return nil
}

// Persistence stores loggers. Implementations must not fail when their
// backing store is unavailable if they can degrade to a local copy.
type Persistence interface {
	LoadLoggers(ctx context.Context) ([]Logger, error)
	SaveLogger(ctx context.Context, l Logger) error
	DeleteLogger(ctx context.Context, id string) error
}

// SampleSource supplies hourly temperatures.
type SampleSource interface {
	FetchHistorical(ctx context.Context, loc weather.Location, from, to time.Time) ([]weather.TemperatureSample, error)
	FetchForecastAndToday(ctx context.Context, loc weather.Location) ([]weather.TemperatureSample, error)
}

// Geocoder turns a place name into coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, place string) (weather.Location, error)
}

// Progress is published after every committed refresh.
type Progress struct {
	LoggerID              string     `json:"loggerId"`
	Name                  string     `json:"name"`
	AccumulatedDegreeDays float64    `json:"accumulatedDegreeDays"`
	TargetDegreeDays      float64    `json:"targetDegreeDays"`
	EstimatedFinishTime   *time.Time `json:"estimatedFinishTime,omitempty"`
	Finished              bool       `json:"finished"`
	Timestamp             time.Time  `json:"timestamp"`
}

// Notifier receives progress updates. PublishFinished is called once per
// logger, when the measured accumulation first reaches the target.
type Notifier interface {
	PublishProgress(ctx context.Context, p Progress) error
	PublishFinished(ctx context.Context, p Progress) error
}
