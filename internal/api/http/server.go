package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/degreeday-logger/internal/dglogger"
	"github.com/i474232898/degreeday-logger/internal/weather"
)

const serviceName = "degreeday-logger"

// NewApp builds the Fiber app with the centralized error handler, global
// middleware and the health endpoint.
func NewApp(accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	if accessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})
	return app
}

// toHTTPError maps domain errors to HTTP status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, dglogger.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, dglogger.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, dglogger.ErrMissingStartTime):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, weather.ErrSourceUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, "weather data temporarily unavailable")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
