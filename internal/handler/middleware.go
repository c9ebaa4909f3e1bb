package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/slipway-ci/slipway/internal"
	"github.com/slipway-ci/slipway/internal/store"
)

type WebhookKeyReader interface {
	GetWebhookKeyByValue(ctx context.Context, value string) (*store.WebhookKey, error)
}

// WebhookKeyAuth rejects requests that do not carry a known key in the
// X-Slipway-Webhook-Key header. The key value itself never appears in
// logs or responses.
func WebhookKeyAuth(keys WebhookKeyReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			value := c.Request().Header.Get(internal.WebhookKeyHeader)
			if value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing webhook key")
			}
			if _, err := keys.GetWebhookKeyByValue(c.Request().Context(), value); err != nil {
				return echo.NewHTTPError(
					http.StatusUnauthorized, "invalid webhook key",
				).WithInternal(err)
			}
			return next(c)
		}
	}
}
