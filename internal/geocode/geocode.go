// Package geocode resolves place names to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/degreeday-logger/internal/weather"
)

// ErrEmptyPlace is returned for a blank place name.
var ErrEmptyPlace = errors.New("empty place name")

// Resolver turns a place name into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, place string) (weather.Location, error)
}

// GoogleResolver uses the Google Geocoding API through kelvins/geocoder.
// Results are memoised per normalised place name.
type GoogleResolver struct {
	mu     sync.Mutex
	cache  map[string]weather.Location
	lookup func(geocoder.Address) (geocoder.Location, error)
	logger *slog.Logger
}

// NewGoogleResolver configures the geocoder API key and returns a resolver.
func NewGoogleResolver(apiKey string, logger *slog.Logger) *GoogleResolver {
	if logger == nil {
		logger = slog.Default()
	}
	geocoder.ApiKey = apiKey
	return &GoogleResolver{
		cache:  make(map[string]weather.Location),
		lookup: geocoder.Geocoding,
		logger: logger.With("component", "geocode"),
	}
}

// ParseAddress splits "city, country" input. Anything before the last comma
// is the city.
func ParseAddress(place string) geocoder.Address {
	place = strings.TrimSpace(place)
	i := strings.LastIndex(place, ",")
	if i < 0 {
		return geocoder.Address{City: place}
	}
	return geocoder.Address{
		City:    strings.TrimSpace(place[:i]),
		Country: strings.TrimSpace(place[i+1:]),
	}
}

// Resolve returns the coordinates of place.
func (r *GoogleResolver) Resolve(ctx context.Context, place string) (weather.Location, error) {
	key := strings.ToLower(strings.TrimSpace(place))
	if key == "" {
		return weather.Location{}, ErrEmptyPlace
	}
	if err := ctx.Err(); err != nil {
		return weather.Location{}, err
	}

	r.mu.Lock()
	if loc, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return loc, nil
	}
	r.mu.Unlock()

	res, err := r.lookup(ParseAddress(place))
	if err != nil {
		return weather.Location{}, fmt.Errorf("geocode %q: %w", place, err)
	}
	loc := weather.Location{Latitude: res.Latitude, Longitude: res.Longitude}

	r.mu.Lock()
	r.cache[key] = loc
	r.mu.Unlock()
	r.logger.Info("place resolved", "place", place, "lat", loc.Latitude, "lon", loc.Longitude)
	return loc, nil
}
