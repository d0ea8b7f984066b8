package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/logger"
	"catalog-service/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(logger.NewNopLogger())})
	for _, h := range RequestContext(time.Second) {
		app.Use(h)
	}
	app.Use(AccessLog(zap.NewNop()))
	return app
}

func body(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestErrorHandler_MapsKindsToGenericBodies(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{apperrors.NewValidationError("title is required"), http.StatusBadRequest, "invalid input"},
		{apperrors.NewInvalidIDError("zzz"), http.StatusBadRequest, "invalid identifier"},
		{apperrors.NewDuplicateKeyError("users: duplicate key"), http.StatusConflict, "already exists"},
		{apperrors.NewBackendUnavailableError("insert", errors.New("dial tcp 10.1.1.1:27017")), http.StatusServiceUnavailable, "service unavailable"},
		{errors.New("nil pointer somewhere"), http.StatusInternalServerError, "internal server error"},
		{fmt.Errorf("get item: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "request timed out"},
		{fiber.NewError(http.StatusMethodNotAllowed, "method not allowed"), http.StatusMethodNotAllowed, "method not allowed"},
	}

	for _, tc := range cases {
		app := newApp()
		err := tc.err
		app.Get("/", func(c *fiber.Ctx) error { return err })

		resp, testErr := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, testErr)
		assert.Equal(t, tc.status, resp.StatusCode, tc.msg)
		assert.Equal(t, tc.msg, body(t, resp)["error"])
	}
}

func TestRequestContext_PropagatesRequestIDAndDeadline(t *testing.T) {
	app := newApp()
	app.Get("/", func(c *fiber.Ctx) error {
		id, err := utils.GetRequestIDFromContext(c.UserContext())
		if err != nil {
			return err
		}
		_, hasDeadline := c.UserContext().Deadline()
		return c.JSON(fiber.Map{"request_id": id, "deadline": hasDeadline})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := body(t, resp)
	assert.NotEmpty(t, out["request_id"])
	assert.Equal(t, resp.Header.Get(RequestIDHeader), out["request_id"])
	assert.Equal(t, true, out["deadline"])
}

func TestRequestContext_KeepsIncomingRequestID(t *testing.T) {
	app := newApp()
	app.Get("/", func(c *fiber.Ctx) error {
		id, _ := utils.GetRequestIDFromContext(c.UserContext())
		return c.SendString(id)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "req-42", string(raw))
}

func TestTimeout_CancelsSlowBackend(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(nil)})
	app.Use(Timeout(20 * time.Millisecond))
	app.Get("/", func(c *fiber.Ctx) error {
		select {
		case <-c.UserContext().Done():
			return apperrors.NewBackendUnavailableError("find", c.UserContext().Err())
		case <-time.After(time.Second):
			return c.SendStatus(http.StatusOK)
		}
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "request timed out", body(t, resp)["error"])
}

func TestAccessLog_RecordsAuthenticatedUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := fiber.New()
	for _, h := range RequestContext(time.Second) {
		app.Use(h)
	}
	app.Use(AccessLog(zap.New(core)))
	app.Get("/", func(c *fiber.Ctx) error {
		c.SetUserContext(utils.WithUserID(c.UserContext(), "user-7"))
		return c.SendStatus(http.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "user-7", fields["user_id"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestSecurityHeaders(t *testing.T) {
	app := fiber.New()
	app.Use(SecurityHeaders())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimiter(2, time.Minute))
	app.Post("/login", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
