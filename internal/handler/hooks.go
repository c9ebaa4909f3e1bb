package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/slipway-ci/slipway/internal/service"
)

func SetupHookRoutes(
	g *echo.Group,
	pipelineService service.PipelineServicer,
	keyService service.WebhookKeyServicer,
) {
	h := NewHookHandler(pipelineService)
	g.POST("/hooks/:pipeline", h.PostTrigger, WebhookKeyAuth(keyService))
}

type HookHandler struct {
	pipelineService service.PipelineServicer
}

func NewHookHandler(pipelineService service.PipelineServicer) *HookHandler {
	return &HookHandler{pipelineService}
}

// PostTrigger turns a webhook delivery into a run. Created runs answer
// 201; a retrigger of an event that already passed answers 200 with the
// prior run; a branch off the allow-list is acknowledged with 204 so
// the sender never retries it.
func (h *HookHandler) PostTrigger(c echo.Context) error {
	tp := new(TriggerParams)
	if err := c.Bind(tp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid trigger payload")
	}
	if tp.Branch == "" {
		tp.Branch = "main"
	}
	if tp.CommitSha == "" {
		// a delivery without a commit is never a duplicate
		tp.CommitSha = uuid.NewString()
	}

	event := service.TriggerEvent{
		Pipeline:  tp.Pipeline,
		Branch:    tp.Branch,
		CommitSha: tp.CommitSha,
	}
	r, created, err := h.pipelineService.TriggerRun(c.Request().Context(), event)
	if err != nil {
		var branchErr service.BranchNotAllowedError
		if errors.As(err, &branchErr) {
			return c.NoContent(http.StatusNoContent)
		}
		return err
	}
	if !created {
		return c.JSON(http.StatusOK, r)
	}
	return c.JSON(http.StatusCreated, r)
}
