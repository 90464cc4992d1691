// Package handler implements the HTTP endpoints of the API. Every
// response uses the same envelope: {"success": true, "message"?,
// "data"?} on success and {"success": false, "error"} on failure.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/queuekill/queuekill/internal/middleware"
	"github.com/queuekill/queuekill/internal/repository"
	"github.com/queuekill/queuekill/internal/service"
)

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// fieldError is one entry of a 400 validation response.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func ok(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// okData returns data with no message but keeps the data key present
// even when it is null.
func okData(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, map[string]interface{}{"success": true, "data": data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "error": msg})
}

func failValidation(c echo.Context, details []fieldError) error {
	return c.JSON(http.StatusBadRequest, echo.Map{
		"success": false,
		"error":   "Validation failed",
		"details": details,
	})
}

// failFrom maps the shared repository and service errors to HTTP
// statuses; anything unrecognized becomes a 500 with the fallback
// message so internals never leak to clients.
func failFrom(c echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrRestaurantNotFound),
		errors.Is(err, repository.ErrQueueNotFound),
		errors.Is(err, repository.ErrEntryNotFound):
		return fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrForbidden):
		return fail(c, http.StatusForbidden, "forbidden")
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusConflict, "email already exists")
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, service.ErrAlreadyQueued),
		errors.Is(err, service.ErrEntryClosed):
		return fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrQueueInactive):
		return fail(c, http.StatusBadRequest, err.Error())
	default:
		return fail(c, http.StatusInternalServerError, fallback)
	}
}

// userID reads the authenticated user ID stored by the JWT middleware.
func userID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(middleware.CtxUserID).(uint64)
	return id, ok
}

// optionalUserID returns a pointer for endpoints that serve both
// authenticated users and walk-ins.
func optionalUserID(c echo.Context) *uint64 {
	if id, ok := userID(c); ok {
		return &id
	}
	return nil
}
