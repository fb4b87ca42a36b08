// Package dglogger owns the set of degree-day loggers and drives their
// refresh cycles against a sample source.
package dglogger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/degreeday-logger/internal/common"
	"github.com/i474232898/degreeday-logger/internal/degreeday"
	"github.com/i474232898/degreeday-logger/internal/weather"
)

// Config holds the manager's defaults and throttling.
type Config struct {
	DefaultLatitude  float64
	DefaultLongitude float64
	DefaultTarget    float64
	RefreshCooldown  time.Duration
	TimeZone         *time.Location

	// RefreshOnChange starts a background refresh after operations that
	// invalidate a logger's table (start, start override, create with start).
	RefreshOnChange bool
	RefreshTimeout  time.Duration
}

// Manager keeps loggers in memory, persists every change and recomputes
// derived fields whenever inputs change.
type Manager struct {
	mu          sync.Mutex
	saveMu      sync.Mutex
	loggers     map[string]*Logger
	lastRefresh map[string]time.Time

	source   SampleSource
	store    Persistence
	notifier Notifier
	geocoder Geocoder
	cfg      Config
	tz       *time.Location

	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewManager wires a manager. store, notifier and geocoder may be nil.
func NewManager(source SampleSource, store Persistence, notifier Notifier, geocoder Geocoder, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	tz := cfg.TimeZone
	if tz == nil {
		tz = time.Local
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = time.Minute
	}
	return &Manager{
		loggers:     make(map[string]*Logger),
		lastRefresh: make(map[string]time.Time),
		source:      source,
		store:       store,
		notifier:    notifier,
		geocoder:    geocoder,
		cfg:         cfg,
		tz:          tz,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      logger.With("component", "dglogger"),
	}
}

func (m *Manager) clock() time.Time {
	return m.now().In(m.tz)
}

// Load replaces the in-memory set with the persisted loggers.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	loaded, err := m.store.LoadLoggers(ctx)
	if err != nil {
		return fmt.Errorf("load loggers: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggers = make(map[string]*Logger, len(loaded))
	for i := range loaded {
		l := loaded[i].Clone()
		if l.DataTable == nil {
			l.DataTable = []degreeday.DataPoint{}
		}
		m.loggers[l.ID] = &l
	}
	m.logger.Info("loggers loaded", "count", len(loaded))
	return nil
}

// List returns all loggers ordered by creation time.
func (m *Manager) List() []Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Logger, 0, len(m.loggers))
	for _, l := range m.loggers {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns a copy of one logger.
func (m *Manager) Get(id string) (Logger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loggers[id]
	if !ok {
		return Logger{}, ErrNotFound
	}
	return l.Clone(), nil
}

// Create adds a logger. Coordinates come from the input, then from the
// geocoded place name, then from the configured defaults. A supplied start
// time starts the logger immediately.
func (m *Manager) Create(ctx context.Context, in CreateInput) (Logger, error) {
	if in.Name == "" {
		return Logger{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.TargetDegreeDays != nil && *in.TargetDegreeDays <= 0 {
		return Logger{}, fmt.Errorf("%w: target must be positive", ErrInvalidInput)
	}

	lat, lon := m.cfg.DefaultLatitude, m.cfg.DefaultLongitude
	switch {
	case in.Latitude != nil && in.Longitude != nil:
		lat, lon = *in.Latitude, *in.Longitude
	case in.Place != "" && m.geocoder != nil:
		loc, err := m.geocoder.Resolve(ctx, in.Place)
		if err != nil {
			return Logger{}, fmt.Errorf("%w: resolve %q: %w", ErrInvalidInput, in.Place, err)
		}
		lat, lon = loc.Latitude, loc.Longitude
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Logger{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}

	target := m.cfg.DefaultTarget
	if in.TargetDegreeDays != nil {
		target = *in.TargetDegreeDays
	}

	now := m.clock()
	l := &Logger{
		ID:               m.newID(),
		Name:             in.Name,
		Latitude:         lat,
		Longitude:        lon,
		TargetDegreeDays: target,
		DayOffset:        in.DayOffset,
		NightOffset:      in.NightOffset,
		BaseTemperature:  in.BaseTemperature,
		DataTable:        []degreeday.DataPoint{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.StartTime != nil {
		start := in.StartTime.In(m.tz)
		l.StartTime = &start
		l.IsRunning = true
	}

	m.mu.Lock()
	m.loggers[l.ID] = l
	out := l.Clone()
	m.mu.Unlock()

	m.logger.Info("logger created", "id", out.ID, "name", out.Name, "lat", lat, "lon", lon)
	m.persist(ctx, out.ID)
	if out.StartTime != nil {
		m.triggerRefresh(out.ID)
	}
	return out, nil
}

// Update edits name, target, offsets or base temperature and recomputes the
// derived fields from the existing table.
func (m *Manager) Update(ctx context.Context, id string, in UpdateInput) (Logger, error) {
	if err := in.validate(); err != nil {
		return Logger{}, err
	}

	m.mu.Lock()
	l, ok := m.loggers[id]
	if !ok {
		m.mu.Unlock()
		return Logger{}, ErrNotFound
	}
	if in.Name != nil {
		l.Name = *in.Name
	}
	if in.TargetDegreeDays != nil && *in.TargetDegreeDays != l.TargetDegreeDays {
		l.TargetDegreeDays = *in.TargetDegreeDays
		l.FinishReached = false
	}
	if in.DayOffset != nil {
		l.DayOffset = *in.DayOffset
	}
	if in.NightOffset != nil {
		l.NightOffset = *in.NightOffset
	}
	if in.BaseTemperature != nil {
		l.BaseTemperature = *in.BaseTemperature
	}
	now := m.clock()
	l.UpdatedAt = now
	finished := m.recomputeLocked(l, now)
	out := l.Clone()
	m.mu.Unlock()

	m.persist(ctx, id)
	if finished {
		m.notifyFinished(ctx, out, now)
	}
	return out, nil
}

// Toggle flips the running state. The first start records the start time.
func (m *Manager) Toggle(ctx context.Context, id string) (Logger, error) {
	m.mu.Lock()
	l, ok := m.loggers[id]
	if !ok {
		m.mu.Unlock()
		return Logger{}, ErrNotFound
	}
	now := m.clock()
	l.IsRunning = !l.IsRunning
	if l.IsRunning && l.StartTime == nil {
		start := now.Truncate(time.Minute)
		l.StartTime = &start
	}
	l.UpdatedAt = now
	needsBuild := l.IsRunning && len(l.DataTable) == 0
	out := l.Clone()
	m.mu.Unlock()

	m.logger.Info("logger toggled", "id", id, "running", out.IsRunning)
	m.persist(ctx, id)
	if needsBuild {
		m.triggerRefresh(id)
	}
	return out, nil
}

// SetStartDate overrides the start time with the value as supplied. The
// table is discarded and rebuilt from the new start.
func (m *Manager) SetStartDate(ctx context.Context, id string, start time.Time) (Logger, error) {
	if start.IsZero() {
		return Logger{}, fmt.Errorf("%w: start time is required", ErrInvalidInput)
	}
	return m.overrideStart(ctx, id, func(*Logger) (time.Time, error) {
		return start.In(m.tz), nil
	})
}

// SetStartClock changes the time of day of an existing start time.
func (m *Manager) SetStartClock(ctx context.Context, id string, hour, minute int) (Logger, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Logger{}, fmt.Errorf("%w: clock %02d:%02d out of range", ErrInvalidInput, hour, minute)
	}
	return m.overrideStart(ctx, id, func(l *Logger) (time.Time, error) {
		if l.StartTime == nil {
			return time.Time{}, ErrMissingStartTime
		}
		s := l.StartTime.In(m.tz)
		return time.Date(s.Year(), s.Month(), s.Day(), hour, minute, 0, 0, m.tz), nil
	})
}

func (m *Manager) overrideStart(ctx context.Context, id string, next func(*Logger) (time.Time, error)) (Logger, error) {
	m.mu.Lock()
	l, ok := m.loggers[id]
	if !ok {
		m.mu.Unlock()
		return Logger{}, ErrNotFound
	}
	start, err := next(l)
	if err != nil {
		m.mu.Unlock()
		return Logger{}, err
	}

	l.StartTime = &start
	l.DataTable = []degreeday.DataPoint{}
	l.AccumulatedDegreeDays = 0
	l.EstimatedFinishTime = nil
	l.FinishReached = false
	l.LastFetchedAt = nil
	l.UpdatedAt = m.clock()
	delete(m.lastRefresh, id)
	running := l.IsRunning
	out := l.Clone()
	m.mu.Unlock()

	m.logger.Info("logger start overridden", "id", id, "start", start)
	m.persist(ctx, id)
	if running {
		m.triggerRefresh(id)
	}
	return out, nil
}

// Reset returns the logger to its just-created state.
func (m *Manager) Reset(ctx context.Context, id string) (Logger, error) {
	m.mu.Lock()
	l, ok := m.loggers[id]
	if !ok {
		m.mu.Unlock()
		return Logger{}, ErrNotFound
	}
	l.resetState()
	l.UpdatedAt = m.clock()
	delete(m.lastRefresh, id)
	out := l.Clone()
	m.mu.Unlock()

	m.logger.Info("logger reset", "id", id)
	m.persist(ctx, id)
	return out, nil
}

// Delete removes the logger. In-flight refresh results for it are dropped.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.loggers[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.loggers, id)
	delete(m.lastRefresh, id)
	m.mu.Unlock()

	m.logger.Info("logger deleted", "id", id)
	if m.store == nil {
		return nil
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	if err := m.store.DeleteLogger(ctx, id); err != nil {
		m.logger.Warn("delete logger from store failed", "id", id, "error", err)
	}
	return nil
}

// Series returns the logger and its accumulated chart series.
func (m *Manager) Series(id string) (Logger, degreeday.Series, error) {
	l, err := m.Get(id)
	if err != nil {
		return Logger{}, degreeday.Series{}, err
	}
	if l.StartTime == nil || len(l.DataTable) == 0 {
		return l, degreeday.Series{Points: []degreeday.SeriesPoint{}}, nil
	}
	return l, degreeday.Accumulate(l.DataTable, l.Params()), nil
}

// recomputeLocked re-derives accumulation and finish time from the current
// table. It reports whether the logger has just reached its target.
func (m *Manager) recomputeLocked(l *Logger, now time.Time) bool {
	if l.StartTime == nil || len(l.DataTable) == 0 {
		return false
	}
	return applyResult(l, degreeday.Compute(l.DataTable, l.Params(), now))
}

func applyResult(l *Logger, res degreeday.Result) bool {
	l.DataTable = res.Table
	if res.Accumulated > l.AccumulatedDegreeDays {
		l.AccumulatedDegreeDays = res.Accumulated
	}
	l.EstimatedFinishTime = res.EstimatedFinishTime
	if res.Reached && !l.FinishReached {
		l.FinishReached = true
		return true
	}
	return false
}

func (m *Manager) persist(ctx context.Context, id string) {
	if m.store == nil {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	l, ok := m.loggers[id]
	var snapshot Logger
	if ok {
		snapshot = l.Clone()
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := m.store.SaveLogger(ctx, snapshot); err != nil {
		m.logger.Warn("save logger failed", "id", id, "error", err)
	}
}

func (m *Manager) triggerRefresh(id string) {
	if !m.cfg.RefreshOnChange {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RefreshTimeout)
		defer cancel()
		if _, _, err := m.Refresh(ctx, id); err != nil {
			m.logger.Warn("background refresh failed", "id", id, "error", err)
		}
	}()
}

func progressOf(l Logger, now time.Time) Progress {
	return Progress{
		LoggerID:              l.ID,
		Name:                  l.Name,
		AccumulatedDegreeDays: common.Round2(l.AccumulatedDegreeDays),
		TargetDegreeDays:      l.TargetDegreeDays,
		EstimatedFinishTime:   cloneTime(l.EstimatedFinishTime),
		Finished:              l.FinishReached,
		Timestamp:             now,
	}
}

func (m *Manager) notifyProgress(ctx context.Context, l Logger, now time.Time) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.PublishProgress(ctx, progressOf(l, now)); err != nil {
		m.logger.Warn("publish progress failed", "id", l.ID, "error", err)
	}
}

func (m *Manager) notifyFinished(ctx context.Context, l Logger, now time.Time) {
	m.logger.Info("logger reached target", "id", l.ID, "target", l.TargetDegreeDays)
	if m.notifier == nil {
		return
	}
	if err := m.notifier.PublishFinished(ctx, progressOf(l, now)); err != nil {
		m.logger.Warn("publish finish failed", "id", l.ID, "error", err)
	}
}

// ensure weather.Service satisfies SampleSource.
var _ SampleSource = (*weather.Service)(nil)
