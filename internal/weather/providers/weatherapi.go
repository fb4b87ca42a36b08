package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/degreeday-logger/internal/common"
	"github.com/i474232898/degreeday-logger/internal/weather"
)

// maxHistoryDays bounds a single historical request; the API serves one
// date per call.
const maxHistoryDays = 40

// WeatherAPIProvider implements weather.SampleProvider for WeatherAPI.com.
type WeatherAPIProvider struct {
	name         string
	apiKey       string
	baseURL      string
	forecastDays int
	tz           *time.Location
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, limiter *weather.RateLimiter, apiKey string, tz *time.Location, forecastDays int) *WeatherAPIProvider {
	if tz == nil {
		tz = time.Local
	}
	if forecastDays <= 0 {
		forecastDays = 3
	}
	return &WeatherAPIProvider{
		name:         "weatherapi",
		apiKey:       apiKey,
		baseURL:      "https://api.weatherapi.com/v1",
		forecastDays: forecastDays,
		tz:           tz,
		httpCfg:      defaultHTTPConfig(client, limiter),
		circuit:      newCircuit("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

// FetchHistorical issues one history call per date; the shared rate limiter
// spaces them out.
func (p *WeatherAPIProvider) FetchHistorical(ctx context.Context, loc weather.Location, from, to time.Time) ([]weather.TemperatureSample, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi api key is not configured")
	}

	day := common.StartOfDay(from.In(p.tz))
	last := common.StartOfDay(to.In(p.tz))

	if last.Sub(day) >= maxHistoryDays*24*time.Hour {
		return nil, fmt.Errorf("weatherapi history range exceeds %d days", maxHistoryDays)
	}

	var samples []weather.TemperatureSample
	for !day.After(last) {
		values := p.baseValues(loc)
		values.Set("dt", common.DateString(day))
		daySamples, err := p.fetchHours(ctx, "history.json", values)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", common.DateString(day), err)
		}
		samples = append(samples, daySamples...)
		day = day.AddDate(0, 0, 1)
	}
	return samples, nil
}

func (p *WeatherAPIProvider) FetchForecastAndToday(ctx context.Context, loc weather.Location) ([]weather.TemperatureSample, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi api key is not configured")
	}

	values := p.baseValues(loc)
	values.Set("days", fmt.Sprintf("%d", p.forecastDays))
	values.Set("aqi", "no")
	values.Set("alerts", "no")
	return p.fetchHours(ctx, "forecast.json", values)
}

func (p *WeatherAPIProvider) baseValues(loc weather.Location) url.Values {
	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI uses "q" for location; it accepts "lat,lon".
	values.Set("q", fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude))
	return values
}

func (p *WeatherAPIProvider) fetchHours(ctx context.Context, endpoint string, values url.Values) ([]weather.TemperatureSample, error) {
	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Hour []struct {
					TimeEpoch int64   `json:"time_epoch"`
					TempC     float64 `json:"temp_c"`
				} `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}

	u := fmt.Sprintf("%s/%s?%s", p.baseURL, endpoint, values.Encode())
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return nil, err
	}

	var samples []weather.TemperatureSample
	for _, day := range payload.Forecast.ForecastDay {
		for _, h := range day.Hour {
			if h.TimeEpoch == 0 {
				return nil, fmt.Errorf("%w: hour without time_epoch", errMalformed)
			}
			ts := time.Unix(h.TimeEpoch, 0).In(p.tz)
			samples = append(samples, weather.TemperatureSample{
				Time:         common.FloorToHour(ts),
				TemperatureC: h.TempC,
			})
		}
	}
	return samples, nil
}
