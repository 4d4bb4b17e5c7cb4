package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/always-on-dashboard/internal/dashboard"
	"github.com/i474232898/always-on-dashboard/internal/store"
	"github.com/i474232898/always-on-dashboard/internal/weather"
)

var validate = validator.New()

// Dashboard is the session the routes read from.
type Dashboard interface {
	View() dashboard.View
	WeatherPanel() dashboard.WeatherView
	OnPermissionsChanged(hasLocation, hasCalendar bool)
	RefreshCalendar(ctx context.Context)
}

// WeatherControls are the user actions of the weather panel.
type WeatherControls interface {
	Refresh(forceFresh bool) error
	ToggleUnits() weather.UnitSystem
	SetCredential(value string)
}

// History serves stored refreshes.
type History interface {
	GetRange(from, to time.Time) ([]weather.Record, error)
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, dash Dashboard, controls WeatherControls, history History) {
	v1 := app.Group("/api/v1")

	v1.Get("/dashboard", func(c *fiber.Ctx) error {
		return c.JSON(dash.View())
	})

	v1.Get("/weather", func(c *fiber.Ctx) error {
		return c.JSON(dash.WeatherPanel())
	})

	v1.Post("/weather/refresh", func(c *fiber.Ctx) error {
		if err := controls.Refresh(c.QueryBool("fresh", false)); err != nil {
			switch {
			case errors.Is(err, weather.ErrPermissionDenied):
				return fiber.NewError(fiber.StatusForbidden, weather.PermissionDeniedReason)
			case errors.Is(err, weather.ErrServiceClosed):
				return fiber.NewError(fiber.StatusServiceUnavailable, "weather service is shutting down")
			default:
				return fiber.NewError(fiber.StatusInternalServerError, "failed to start weather refresh")
			}
		}
		return c.Status(fiber.StatusAccepted).JSON(dash.WeatherPanel())
	})

	v1.Post("/weather/units/toggle", func(c *fiber.Ctx) error {
		units := controls.ToggleUnits()
		return c.JSON(fiber.Map{"units": dashboard.NewUnitsView(units)})
	})

	v1.Put("/weather/credential", func(c *fiber.Ctx) error {
		var req credentialRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		controls.SetCredential(req.Key)
		return c.Status(fiber.StatusAccepted).JSON(dash.WeatherPanel())
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		records, err := history.GetRange(req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
		}

		return c.JSON(fiber.Map{
			"from":    req.From,
			"to":      req.To,
			"records": records,
		})
	})

	v1.Put("/permissions", func(c *fiber.Ctx) error {
		var req permissionsRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		dash.OnPermissionsChanged(*req.Location, *req.Calendar)
		return c.JSON(dash.View().Permissions)
	})

	v1.Post("/calendar/refresh", func(c *fiber.Ctx) error {
		dash.RefreshCalendar(c.UserContext())
		return c.JSON(fiber.Map{"events": dash.View().Events})
	})
}

// credentialRequest carries the API key override. A blank key clears it.
type credentialRequest struct {
	Key string `json:"key" validate:"max=256"`
}

type permissionsRequest struct {
	Location *bool `json:"location" validate:"required"`
	Calendar *bool `json:"calendar" validate:"required"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
