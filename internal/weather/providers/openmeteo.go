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

// recentHistoryWindow is how far back the forecast endpoint serves past
// dates. Older ranges go to the archive, which lags a few days behind.
const recentHistoryWindow = 90 * 24 * time.Hour

// OpenMeteoProvider implements weather.SampleProvider for Open-Meteo.
type OpenMeteoProvider struct {
	name         string
	forecastURL  string
	archiveURL   string
	forecastDays int
	tz           *time.Location
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker
	now          func() time.Time
}

func NewOpenMeteoProvider(client *http.Client, limiter *weather.RateLimiter, tz *time.Location, forecastDays int) *OpenMeteoProvider {
	if tz == nil {
		tz = time.Local
	}
	if forecastDays <= 0 {
		forecastDays = 7
	}
	return &OpenMeteoProvider{
		name:         "openmeteo",
		forecastURL:  "https://api.open-meteo.com/v1/forecast",
		archiveURL:   "https://archive-api.open-meteo.com/v1/archive",
		forecastDays: forecastDays,
		tz:           tz,
		httpCfg:      defaultHTTPConfig(client, limiter),
		circuit:      newCircuit("openmeteo"),
		now:          time.Now,
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) FetchHistorical(ctx context.Context, loc weather.Location, from, to time.Time) ([]weather.TemperatureSample, error) {
	values := p.baseValues(loc)
	values.Set("start_date", common.DateString(from.In(p.tz)))
	values.Set("end_date", common.DateString(to.In(p.tz)))

	base := p.archiveURL
	if p.now().Sub(from) < recentHistoryWindow {
		base = p.forecastURL
	}
	return p.fetchHourly(ctx, base, values)
}

func (p *OpenMeteoProvider) FetchForecastAndToday(ctx context.Context, loc weather.Location) ([]weather.TemperatureSample, error) {
	values := p.baseValues(loc)
	values.Set("forecast_days", fmt.Sprintf("%d", p.forecastDays))
	return p.fetchHourly(ctx, p.forecastURL, values)
}

func (p *OpenMeteoProvider) baseValues(loc weather.Location) url.Values {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
	values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
	values.Set("hourly", "temperature_2m")
	values.Set("timezone", p.timezoneParam())
	return values
}

// timezoneParam names the zone the API should report local times in.
func (p *OpenMeteoProvider) timezoneParam() string {
	name := p.tz.String()
	if name == "" || name == "Local" {
		return "auto"
	}
	return name
}

func (p *OpenMeteoProvider) fetchHourly(ctx context.Context, base string, values url.Values) ([]weather.TemperatureSample, error) {
	var payload struct {
		Hourly struct {
			Time        []string   `json:"time"`
			Temperature []*float64 `json:"temperature_2m"`
		} `json:"hourly"`
	}

	u := fmt.Sprintf("%s?%s", base, values.Encode())
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return nil, err
	}

	times := payload.Hourly.Time
	temps := payload.Hourly.Temperature
	if len(times) != len(temps) {
		return nil, fmt.Errorf("%w: %d times but %d temperatures", errMalformed, len(times), len(temps))
	}

	samples := make([]weather.TemperatureSample, 0, len(times))
	for i, raw := range times {
		// The archive has not caught up with the most recent hours yet.
		if temps[i] == nil {
			continue
		}
		ts, err := time.ParseInLocation("2006-01-02T15:04", raw, p.tz)
		if err != nil {
			return nil, fmt.Errorf("%w: bad time %q", errMalformed, raw)
		}
		samples = append(samples, weather.TemperatureSample{
			Time:         common.FloorToHour(ts),
			TemperatureC: *temps[i],
		})
	}
	return samples, nil
}
