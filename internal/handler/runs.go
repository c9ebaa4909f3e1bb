package handler

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/slipway-ci/slipway/internal/service"
	"github.com/slipway-ci/slipway/internal/store"
)

const maxRunsPerPage int64 = 10

func SetupRunRoutes(g *echo.Group, pipelineService service.PipelineServicer) {
	h := NewRunHandler(pipelineService)
	g.GET("/pipelines", h.GetPipelines)
	g.GET("/pipelines/:pipeline/runs", h.GetPipelineRuns)
	g.GET("/pipelines/:pipeline/runs/latest", h.GetLatestPipelineRuns)
	g.GET("/pipelines/:pipeline/images", h.GetPipelineImageBuilds)
	g.GET("/pipelines/:pipeline/images/latest", h.GetLatestPipelineImageBuild)
	g.GET("/pipelines/:pipeline/runs/:run_id/output/stream", h.GetRunOutputStream)
	g.GET("/pipelines/:pipeline/runs/:run_id/status/stream", h.GetRunStatusStream)
	g.GET("/runs/:run_id", h.GetRun)
	g.GET("/runs/:run_id/stages", h.GetRunStages)
	g.GET("/runs/:run_id/output", h.GetRunOutput)
	g.POST("/runs/:run_id/cancel", h.PostCancelRun)
}

type RunHandler struct {
	pipelineService service.PipelineServicer
}

func NewRunHandler(pipelineService service.PipelineServicer) *RunHandler {
	return &RunHandler{pipelineService}
}

type pipelineResponse struct {
	Name             string   `json:"name"`
	Branches         []string `json:"branches"`
	ConcurrencyGroup string   `json:"concurrency_group"`
	Policy           string   `json:"concurrency_policy,omitempty"`
	Schedule         string   `json:"schedule,omitempty"`
	HasImage         bool     `json:"has_image"`
	RemoteHost       string   `json:"remote_host,omitempty"`
}

func (h *RunHandler) GetPipelines(c echo.Context) error {
	defs := h.pipelineService.ListDefinitions()
	pipelines := make([]pipelineResponse, 0, len(defs))
	for _, def := range defs {
		p := pipelineResponse{
			Name:             def.Name,
			Branches:         def.Branches,
			ConcurrencyGroup: def.Group(),
			Policy:           def.Policy,
			HasImage:         def.Image != nil,
		}
		if def.Schedule != nil {
			p.Schedule = def.Schedule.Cron
		}
		if def.Deploy.Remote != nil {
			p.RemoteHost = def.Deploy.Remote.Host
		}
		pipelines = append(pipelines, p)
	}
	return c.JSON(http.StatusOK, pipelines)
}

type runsPageResponse struct {
	Runs     []store.Run `json:"runs"`
	Page     int64       `json:"page"`
	MaxPages int64       `json:"max_pages"`
	Count    int64       `json:"count"`
}

func (h *RunHandler) GetPipelineRuns(c echo.Context) error {
	lrp := new(ListRunsParams)
	if err := c.Bind(lrp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request data")
	}
	page := max(lrp.Page, 1)

	count, err := h.pipelineService.GetPipelineRunCount(c.Request().Context(), lrp.Pipeline)
	if err != nil {
		return err
	}

	runs, err := h.pipelineService.ListPipelineRunsPaginated(
		c.Request().Context(), lrp.Pipeline, maxRunsPerPage, (page-1)*maxRunsPerPage,
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runsPageResponse{
		Runs:     runs,
		Page:     page,
		MaxPages: (count + maxRunsPerPage - 1) / maxRunsPerPage,
		Count:    count,
	})
}

func (h *RunHandler) GetLatestPipelineRuns(c echo.Context) error {
	lrp := new(ListRunsParams)
	if err := c.Bind(lrp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request data")
	}
	limit := lrp.Limit
	if limit <= 0 {
		limit = 3
	}

	runs, err := h.pipelineService.ListLatestPipelineRuns(
		c.Request().Context(), lrp.Pipeline, limit,
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}

// GetPipelineImageBuilds lists the pipeline's recent release images,
// newest first.
func (h *RunHandler) GetPipelineImageBuilds(c echo.Context) error {
	lrp := new(ListRunsParams)
	if err := c.Bind(lrp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request data")
	}
	limit := lrp.Limit
	if limit <= 0 {
		limit = maxRunsPerPage
	}

	builds, err := h.pipelineService.ListImageBuilds(c.Request().Context(), lrp.Pipeline, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, builds)
}

func (h *RunHandler) GetLatestPipelineImageBuild(c echo.Context) error {
	lrp := new(ListRunsParams)
	if err := c.Bind(lrp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request data")
	}

	build, err := h.pipelineService.GetLatestImageBuild(c.Request().Context(), lrp.Pipeline)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, build)
}

func (h *RunHandler) GetRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	r, err := h.pipelineService.GetRunByID(c.Request().Context(), rp.RunID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *RunHandler) GetRunStages(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	results, err := h.pipelineService.GetRunStageResults(c.Request().Context(), rp.RunID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}

// GetRunOutput returns the accumulated output of a run as plain text.
// Live output is served by the stream endpoint instead.
func (h *RunHandler) GetRunOutput(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	r, err := h.pipelineService.GetRunByID(c.Request().Context(), rp.RunID)
	if err != nil {
		return err
	}
	output := ""
	if r.Output != nil {
		output = *r.Output
	}
	return c.String(http.StatusOK, output)
}

func (h *RunHandler) GetRunOutputStream(c echo.Context) error {
	prp := new(PipelineRunParams)
	if err := c.Bind(prp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	rq, ok := h.pipelineService.GetRunQueue(prp.Pipeline)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "pipeline not found")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	id := uuid.NewString()
	rq.OutputSSEClients.AddClient(id)
	defer rq.OutputSSEClients.RemoveClient(id)
	ch := rq.OutputSSEClients.GetClient(id)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case out, open := <-ch:
			if !open {
				return nil
			}
			if out.RunID != prp.RunID {
				continue
			}
			event := &Event{Event: []byte("output"), Data: []byte(out.Line)}
			if err := event.MarshalTo(w); err != nil {
				log.Error("writing output event", "run_id", prp.RunID, "err", err)
				return nil
			}
			w.Flush()
		}
	}
}

func (h *RunHandler) GetRunStatusStream(c echo.Context) error {
	prp := new(PipelineRunParams)
	if err := c.Bind(prp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	rq, ok := h.pipelineService.GetRunQueue(prp.Pipeline)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "pipeline not found")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	id := uuid.NewString()
	rq.StatusSSEClients.AddClient(id)
	defer rq.StatusSSEClients.RemoveClient(id)
	ch := rq.StatusSSEClients.GetClient(id)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case r, open := <-ch:
			if !open {
				return nil
			}
			if r.RunID != prp.RunID {
				continue
			}
			data, err := json.Marshal(r)
			if err != nil {
				log.Error("marshaling run status", "run_id", prp.RunID, "err", err)
				continue
			}
			event := &Event{Event: []byte("status"), Data: data}
			if err := event.MarshalTo(w); err != nil {
				log.Error("writing status event", "run_id", prp.RunID, "err", err)
				return nil
			}
			w.Flush()
		}
	}
}

func (h *RunHandler) PostCancelRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	if err := h.pipelineService.CancelRun(c.Request().Context(), rp.RunID); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "cancelling run"})
}
