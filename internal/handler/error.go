package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/labstack/echo/v4"
	"github.com/slipway-ci/slipway/internal/service"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrorHandler maps service errors onto HTTP status codes. Anything a
// handler returns without mapping it first lands here.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		httpErr     *echo.HTTPError
		unknownErr  service.UnknownPipelineError
		queueFull   *service.ErrRunQueueFull
		configErr   service.ConfigError
		notRunnable service.BranchNotAllowedError
	)

	status := http.StatusInternalServerError
	message := "something went terribly wrong"

	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			message = m
		}
	case errors.As(err, &unknownErr):
		status = http.StatusNotFound
		message = err.Error()
	case errors.As(err, &notRunnable):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.As(err, &queueFull):
		status = http.StatusTooManyRequests
		message = err.Error()
	case errors.As(err, &configErr):
		status = http.StatusBadRequest
		message = err.Error()
	case sqlscan.NotFound(err) || errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
		message = "not found"
	}

	if status >= http.StatusInternalServerError {
		log.Error("handler error", "path", c.Request().URL.Path, "err", err)
	}

	if jsonErr := c.JSON(status, echo.Map{"message": message}); jsonErr != nil {
		log.Error("writing error response", "err", jsonErr)
	}
}

func isUniqueConstraintError(err error) bool {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
