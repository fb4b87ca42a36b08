package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/degreeday-logger/internal/dglogger"
	"github.com/i474232898/degreeday-logger/internal/weather"
)

var validate = validator.New()

// WeatherLookup serves the per-location weather endpoints.
type WeatherLookup interface {
	FetchForecastAndToday(ctx context.Context, loc weather.Location) ([]weather.TemperatureSample, error)
	CurrentTemperature(ctx context.Context, loc weather.Location) (weather.TemperatureSample, error)
}

type handler struct {
	loggers *dglogger.Manager
	weather WeatherLookup
	now     func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. now may be nil.
func RegisterRoutes(app *fiber.App, loggers *dglogger.Manager, lookup WeatherLookup, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	h := &handler{loggers: loggers, weather: lookup, now: now}

	v1 := app.Group("/api/v1")

	v1.Get("/loggers", h.listLoggers)
	v1.Post("/loggers", h.createLogger)
	v1.Get("/loggers/:id", h.getLogger)
	v1.Patch("/loggers/:id", h.updateLogger)
	v1.Delete("/loggers/:id", h.deleteLogger)
	v1.Post("/loggers/:id/toggle", h.toggleLogger)
	v1.Post("/loggers/:id/reset", h.resetLogger)
	v1.Post("/loggers/:id/refresh", h.refreshLogger)
	v1.Put("/loggers/:id/start", h.setStart)

	v1.Get("/weather/hourly", h.hourlyWeather)
}

// createRequest is the body of POST /loggers. Coordinates are optional;
// without them the place name, then the configured default, is used.
type createRequest struct {
	Name             string     `json:"name" validate:"required,max=100"`
	Latitude         *float64   `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude        *float64   `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Place            string     `json:"place" validate:"max=200"`
	TargetDegreeDays *float64   `json:"targetDegreeDays" validate:"omitempty,gt=0"`
	DayOffset        float64    `json:"dayOffset"`
	NightOffset      float64    `json:"nightOffset"`
	BaseTemperature  float64    `json:"baseTemperature"`
	StartTime        *time.Time `json:"startTime"`
}

// updateRequest is the body of PATCH /loggers/:id.
type updateRequest struct {
	Name             *string  `json:"name" validate:"omitempty,min=1,max=100"`
	TargetDegreeDays *float64 `json:"targetDegreeDays" validate:"omitempty,gt=0"`
	DayOffset        *float64 `json:"dayOffset"`
	NightOffset      *float64 `json:"nightOffset"`
	BaseTemperature  *float64 `json:"baseTemperature"`
}

// startRequest is the body of PUT /loggers/:id/start: either a full start
// time or a new HH:MM for the existing start date.
type startRequest struct {
	StartTime *time.Time `json:"startTime"`
	Time      string     `json:"time" validate:"omitempty,datetime=15:04"`
}

func (h *handler) listLoggers(c *fiber.Ctx) error {
	now := h.now()
	loggers := h.loggers.List()
	views := make([]loggerView, 0, len(loggers))
	for _, l := range loggers {
		views = append(views, newLoggerView(l, now))
	}
	return c.JSON(fiber.Map{"loggers": views})
}

func (h *handler) createLogger(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return fiber.NewError(fiber.StatusBadRequest, "latitude and longitude must be given together")
	}

	l, err := h.loggers.Create(c.UserContext(), dglogger.CreateInput{
		Name:             req.Name,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		Place:            req.Place,
		TargetDegreeDays: req.TargetDegreeDays,
		DayOffset:        req.DayOffset,
		NightOffset:      req.NightOffset,
		BaseTemperature:  req.BaseTemperature,
		StartTime:        req.StartTime,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(newLoggerView(l, h.now()))
}

func (h *handler) getLogger(c *fiber.Ctx) error {
	l, series, err := h.loggers.Series(c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	view := newLoggerView(l, h.now())
	if h.weather != nil {
		// A failed lookup only hides the current temperature.
		if cur, err := h.weather.CurrentTemperature(c.UserContext(), l.Location()); err == nil {
			temp := cur.TemperatureC
			view.CurrentTemperature = &temp
		}
	}

	return c.JSON(fiber.Map{
		"logger": view,
		"series": newChart(l.DataTable, series),
		"totals": fiber.Map{
			"measured":  roundValue(series.Measured),
			"projected": roundValue(series.Projected),
		},
	})
}

func (h *handler) updateLogger(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	l, err := h.loggers.Update(c.UserContext(), c.Params("id"), dglogger.UpdateInput{
		Name:             req.Name,
		TargetDegreeDays: req.TargetDegreeDays,
		DayOffset:        req.DayOffset,
		NightOffset:      req.NightOffset,
		BaseTemperature:  req.BaseTemperature,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(newLoggerView(l, h.now()))
}

func (h *handler) deleteLogger(c *fiber.Ctx) error {
	if err := h.loggers.Delete(c.UserContext(), c.Params("id")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handler) toggleLogger(c *fiber.Ctx) error {
	l, err := h.loggers.Toggle(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(newLoggerView(l, h.now()))
}

func (h *handler) resetLogger(c *fiber.Ctx) error {
	l, err := h.loggers.Reset(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(newLoggerView(l, h.now()))
}

// refreshLogger runs a cycle now. Source failures keep the last state and
// are reported as stale rather than as an error.
func (h *handler) refreshLogger(c *fiber.Ctx) error {
	l, refreshed, err := h.loggers.Refresh(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, dglogger.ErrNotFound):
		return toHTTPError(err)
	case err != nil:
		return c.JSON(fiber.Map{
			"refreshed": false,
			"stale":     true,
			"message":   err.Error(),
			"logger":    newLoggerView(l, h.now()),
		})
	}
	return c.JSON(fiber.Map{
		"refreshed": refreshed,
		"stale":     false,
		"logger":    newLoggerView(l, h.now()),
	})
}

func (h *handler) setStart(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var (
		l   dglogger.Logger
		err error
	)
	switch {
	case req.StartTime != nil:
		l, err = h.loggers.SetStartDate(c.UserContext(), c.Params("id"), *req.StartTime)
	case req.Time != "":
		clock, perr := time.Parse("15:04", req.Time)
		if perr != nil {
			return fiber.NewError(fiber.StatusBadRequest, "time must be HH:MM")
		}
		l, err = h.loggers.SetStartClock(c.UserContext(), c.Params("id"), clock.Hour(), clock.Minute())
	default:
		return fiber.NewError(fiber.StatusBadRequest, "startTime or time is required")
	}
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(newLoggerView(l, h.now()))
}

// hourlyWeather returns today's and the forecast hourly temperatures for a
// coordinate pair.
func (h *handler) hourlyWeather(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if h.weather == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "weather lookup disabled")
	}

	samples, err := h.weather.FetchForecastAndToday(c.UserContext(), loc)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{
		"location": loc,
		"hourly":   samples,
	})
}

// locationQuery holds the coordinates of the weather endpoint.
type locationQuery struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

func parseLocationQuery(c *fiber.Ctx) (weather.Location, error) {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" || lonStr == "" {
		return weather.Location{}, errors.New("lat and lon query parameters are required")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return weather.Location{}, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return weather.Location{}, errors.New("lon must be a number")
	}

	q := locationQuery{Latitude: lat, Longitude: lon}
	if err := validate.Struct(q); err != nil {
		return weather.Location{}, err
	}
	return weather.Location{Latitude: lat, Longitude: lon}, nil
}

func roundValue(v float64) float64 {
	return *roundPtr(&v)
}
