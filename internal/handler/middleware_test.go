package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/slipway-ci/slipway/internal"
	"github.com/slipway-ci/slipway/internal/store"
	"github.com/slipway-ci/slipway/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWebhookKeyAuth(t *testing.T) {
	nextCalled := false
	next := func(c echo.Context) error {
		nextCalled = true
		return c.NoContent(http.StatusOK)
	}

	t.Run("success - known key reaches the handler", func(t *testing.T) {
		// arrange
		nextCalled = false
		ctx := context.Background()
		mockService := new(testutil.MockWebhookKeyService)
		mockService.On("GetWebhookKeyByValue", ctx, "known-value").
			Return(&store.WebhookKey{WebhookKeyID: 1, Value: "known-value"}, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/hooks/web", nil)
		req.Header.Set(internal.WebhookKeyHeader, "known-value")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		// act
		err := WebhookKeyAuth(mockService)(next)(c)

		// assert
		assert.NoError(t, err)
		assert.True(t, nextCalled)
		mockService.AssertExpectations(t)
	})

	t.Run("fail - missing key answers 401", func(t *testing.T) {
		// arrange
		nextCalled = false
		mockService := new(testutil.MockWebhookKeyService)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/hooks/web", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		// act
		err := WebhookKeyAuth(mockService)(next)(c)

		// assert
		var httpErr *echo.HTTPError
		assert.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
		assert.False(t, nextCalled)
		mockService.AssertNotCalled(t, "GetWebhookKeyByValue")
	})

	t.Run("fail - unknown key answers 401 without echoing the value", func(t *testing.T) {
		// arrange
		nextCalled = false
		ctx := context.Background()
		mockService := new(testutil.MockWebhookKeyService)
		mockService.On("GetWebhookKeyByValue", ctx, "wrong-value").Return(nil, sql.ErrNoRows)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/hooks/web", nil)
		req.Header.Set(internal.WebhookKeyHeader, "wrong-value")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		// act
		err := WebhookKeyAuth(mockService)(next)(c)

		// assert
		var httpErr *echo.HTTPError
		assert.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
		assert.NotContains(t, httpErr.Message, "wrong-value")
		assert.False(t, nextCalled)
	})
}
