package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/slipway-ci/slipway/internal/service"
)

func SetupWebhookKeyRoutes(g *echo.Group, keyService service.WebhookKeyServicer) {
	h := NewWebhookKeyHandler(keyService)
	g.GET("/keys", h.GetWebhookKeys)
	g.POST("/keys", h.PostWebhookKey)
	g.DELETE("/keys/:webhook_key_id", h.DeleteWebhookKey)
}

type WebhookKeyHandler struct {
	keyService service.WebhookKeyServicer
}

func NewWebhookKeyHandler(keyService service.WebhookKeyServicer) *WebhookKeyHandler {
	return &WebhookKeyHandler{keyService}
}

// webhookKeyResponse carries the key value only in the create response;
// listings never include it.
type webhookKeyResponse struct {
	WebhookKeyID int64     `json:"webhook_key_id"`
	Description  string    `json:"description"`
	Value        string    `json:"value,omitempty"`
	CreatedOn    time.Time `json:"created_on"`
}

func (h *WebhookKeyHandler) GetWebhookKeys(c echo.Context) error {
	keys, err := h.keyService.ListWebhookKeys(c.Request().Context())
	if err != nil {
		return err
	}

	responses := make([]webhookKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, webhookKeyResponse{
			WebhookKeyID: key.WebhookKeyID,
			Description:  key.Description,
			CreatedOn:    key.CreatedOn,
		})
	}
	return c.JSON(http.StatusOK, responses)
}

func (h *WebhookKeyHandler) PostWebhookKey(c echo.Context) error {
	wkp := new(WebhookKeyParams)
	if err := c.Bind(wkp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook key data")
	}

	key, err := h.keyService.CreateWebhookKey(c.Request().Context(), wkp.Description)
	if err != nil {
		if isUniqueConstraintError(err) {
			return echo.NewHTTPError(
				http.StatusConflict, "webhook key already exists",
			).WithInternal(err)
		}
		return err
	}

	return c.JSON(http.StatusCreated, webhookKeyResponse{
		WebhookKeyID: key.WebhookKeyID,
		Description:  key.Description,
		Value:        key.Value,
		CreatedOn:    key.CreatedOn,
	})
}

func (h *WebhookKeyHandler) DeleteWebhookKey(c echo.Context) error {
	wkp := new(WebhookKeyParams)
	if err := c.Bind(wkp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook key id")
	}

	if err := h.keyService.DeleteWebhookKey(c.Request().Context(), wkp.WebhookKeyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "webhook key not found")
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
