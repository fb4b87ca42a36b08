package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/i474232898/degreeday-logger/internal/common"
)

// ErrSourceUnavailable is returned when no provider could deliver samples.
var ErrSourceUnavailable = errors.New("temperature source unavailable")

// ServiceConfig holds the cache and calendar settings of a Service.
type ServiceConfig struct {
	// TimeZone decides what "today" means. Defaults to time.Local.
	TimeZone *time.Location

	HistoryTTL  time.Duration
	ForecastTTL time.Duration
}

// Service is the sample source used by the logger manager. It fronts the
// providers with a TTL cache, collapses identical in-flight fetches and fails
// over across providers in order.
type Service struct {
	providers []SampleProvider
	cache     *SampleCache
	group     singleflight.Group

	tz          *time.Location
	historyTTL  time.Duration
	forecastTTL time.Duration

	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a new Service. A nil cache gets a fresh one.
func NewService(providers []SampleProvider, cache *SampleCache, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NewSampleCache()
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		providers:   providers,
		cache:       cache,
		tz:          cfg.TimeZone,
		historyTTL:  cfg.HistoryTTL,
		forecastTTL: cfg.ForecastTTL,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "sample-source")),
	}
}

// TimeZone returns the zone used for calendar decisions.
func (s *Service) TimeZone() *time.Location {
	return s.tz
}

// FetchHistorical returns archived samples for the dates from..to. A range
// that reaches today (or later) yields an empty result without contacting
// any provider: today's hours belong to FetchForecastAndToday.
func (s *Service) FetchHistorical(ctx context.Context, loc Location, from, to time.Time) ([]TemperatureSample, error) {
	today := common.StartOfDay(s.now().In(s.tz))
	from = common.StartOfDay(from.In(s.tz))
	to = common.StartOfDay(to.In(s.tz))

	if to.Before(from) {
		return nil, nil
	}
	if !to.Before(today) {
		s.logger.DebugContext(ctx, "historical range reaches today; skipping provider call",
			"location", loc.Key(),
			"from", common.DateString(from),
			"to", common.DateString(to),
		)
		return nil, nil
	}

	key := newCacheKey(loc, KindHistorical, from, to)
	return s.fetch(ctx, key, s.historyTTL, func(ctx context.Context, p SampleProvider) ([]TemperatureSample, error) {
		return p.FetchHistorical(ctx, loc, from, to)
	})
}

// FetchForecastAndToday returns today's hours from 00:00 plus the forecast.
func (s *Service) FetchForecastAndToday(ctx context.Context, loc Location) ([]TemperatureSample, error) {
	today := common.StartOfDay(s.now().In(s.tz))
	key := newCacheKey(loc, KindForecast, today, time.Time{})
	return s.fetch(ctx, key, s.forecastTTL, func(ctx context.Context, p SampleProvider) ([]TemperatureSample, error) {
		return p.FetchForecastAndToday(ctx, loc)
	})
}

// CurrentTemperature returns the sample for the current hour.
func (s *Service) CurrentTemperature(ctx context.Context, loc Location) (TemperatureSample, error) {
	samples, err := s.FetchForecastAndToday(ctx, loc)
	if err != nil {
		return TemperatureSample{}, err
	}
	now := common.FloorToHour(s.now().In(s.tz))
	temp, ok := SampleAt(samples, now)
	if !ok {
		return TemperatureSample{}, fmt.Errorf("%w: no sample for %s", ErrSourceUnavailable, now.Format(time.RFC3339))
	}
	return TemperatureSample{Time: now, TemperatureC: temp}, nil
}

func (s *Service) fetch(
	ctx context.Context,
	key cacheKey,
	ttl time.Duration,
	call func(context.Context, SampleProvider) ([]TemperatureSample, error),
) ([]TemperatureSample, error) {
	if samples, ok := s.cache.Get(key); ok {
		return samples, nil
	}

	v, err, shared := s.group.Do(key.String(), func() (interface{}, error) {
		// Another caller may have filled the cache while we queued.
		if samples, ok := s.cache.Get(key); ok {
			return samples, nil
		}

		if len(s.providers) == 0 {
			return nil, fmt.Errorf("%w: no providers configured", ErrSourceUnavailable)
		}

		var errs []error
		for _, p := range s.providers {
			samples, err := call(ctx, p)
			if err == nil && len(samples) == 0 {
				err = errors.New("empty sample set")
			}
			if err != nil {
				s.logger.WarnContext(ctx, "provider fetch failed",
					"provider", p.Name(),
					"key", key.String(),
					"error", err,
				)
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				continue
			}

			s.cache.Put(key, samples, ttl)
			s.logger.DebugContext(ctx, "provider fetch succeeded",
				"provider", p.Name(),
				"key", key.String(),
				"samples", len(samples),
			)
			return samples, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, errors.Join(errs...))
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.DebugContext(ctx, "collapsed duplicate fetch", "key", key.String())
	}
	return v.([]TemperatureSample), nil
}
