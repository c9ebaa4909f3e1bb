package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/slipway-ci/slipway/internal/service"
	"github.com/slipway-ci/slipway/internal/store"
	"github.com/slipway-ci/slipway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestHookHandler_PostTrigger(t *testing.T) {
	t.Run("success - new run is created", func(t *testing.T) {
		// arrange
		ctx := context.Background()
		mockService := new(testutil.MockPipelineService)
		event := service.TriggerEvent{Pipeline: "web", Branch: "main", CommitSha: "abc123"}
		created := &store.Run{
			RunID:     1,
			Pipeline:  "web",
			EventKey:  event.Key(),
			Branch:    "main",
			CommitSha: "abc123",
			Status:    store.StatusQueued,
			CreatedOn: time.Now().UTC(),
		}
		mockService.On("TriggerRun", ctx, event).Return(created, true, nil)

		e := echo.New()
		req := httptest.NewRequest(
			http.MethodPost, "/hooks/web",
			strings.NewReader(`{"branch":"main","commit_sha":"abc123"}`),
		)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("pipeline")
		c.SetParamValues("web")
		h := NewHookHandler(mockService)

		// act
		err := h.PostTrigger(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"run_id":1`)
		assert.Contains(t, rec.Body.String(), `"status":"queued"`)
		mockService.AssertExpectations(t)
	})

	t.Run("success - retrigger of a passed event returns the prior run", func(t *testing.T) {
		// arrange
		ctx := context.Background()
		mockService := new(testutil.MockPipelineService)
		event := service.TriggerEvent{Pipeline: "web", Branch: "main", CommitSha: "abc123"}
		prior := &store.Run{RunID: 1, Pipeline: "web", Status: store.StatusPassed}
		mockService.On("TriggerRun", ctx, event).Return(prior, false, nil)

		e := echo.New()
		req := httptest.NewRequest(
			http.MethodPost, "/hooks/web",
			strings.NewReader(`{"branch":"main","commit_sha":"abc123"}`),
		)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("pipeline")
		c.SetParamValues("web")
		h := NewHookHandler(mockService)

		// act
		err := h.PostTrigger(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"passed"`)
	})

	t.Run("success - branch off the allow-list is acknowledged", func(t *testing.T) {
		// arrange
		ctx := context.Background()
		mockService := new(testutil.MockPipelineService)
		event := service.TriggerEvent{Pipeline: "web", Branch: "feature", CommitSha: "abc123"}
		mockService.On("TriggerRun", ctx, event).
			Return(nil, false, service.BranchNotAllowedError{Pipeline: "web", Branch: "feature"})

		e := echo.New()
		req := httptest.NewRequest(
			http.MethodPost, "/hooks/web",
			strings.NewReader(`{"branch":"feature","commit_sha":"abc123"}`),
		)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("pipeline")
		c.SetParamValues("web")
		h := NewHookHandler(mockService)

		// act
		err := h.PostTrigger(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("success - missing branch defaults to main", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockPipelineService)
		created := &store.Run{RunID: 2, Pipeline: "web", Status: store.StatusQueued}
		mockService.On(
			"TriggerRun", mock.Anything,
			mock.MatchedBy(func(event service.TriggerEvent) bool {
				return event.Branch == "main" && event.CommitSha != ""
			}),
		).Return(created, true, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/hooks/web", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("pipeline")
		c.SetParamValues("web")
		h := NewHookHandler(mockService)

		// act
		err := h.PostTrigger(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("fail - unknown pipeline error is passed through", func(t *testing.T) {
		// arrange
		ctx := context.Background()
		mockService := new(testutil.MockPipelineService)
		event := service.TriggerEvent{Pipeline: "nope", Branch: "main", CommitSha: "abc123"}
		mockService.On("TriggerRun", ctx, event).
			Return(nil, false, service.UnknownPipelineError{Pipeline: "nope"})

		e := echo.New()
		req := httptest.NewRequest(
			http.MethodPost, "/hooks/nope",
			strings.NewReader(`{"branch":"main","commit_sha":"abc123"}`),
		)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("pipeline")
		c.SetParamValues("nope")
		h := NewHookHandler(mockService)

		// act
		err := h.PostTrigger(c)

		// assert
		var unknownErr service.UnknownPipelineError
		assert.ErrorAs(t, err, &unknownErr)
	})
}
