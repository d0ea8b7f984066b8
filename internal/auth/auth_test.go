package auth_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catalog-service/internal/auth"
	"catalog-service/internal/auth/config"
	"catalog-service/internal/auth/testutil"
	"catalog-service/internal/shared/docstore/docstoretest"
	"catalog-service/internal/shared/web"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(backend string) *config.Config {
	cfg := &config.Config{
		UsersCollection:    "users",
		SessionsCollection: "sessions",
		SessionTTL:         time.Hour,
		SessionSecret:      testutil.TestSecret,
		SessionBackend:     backend,
		BcryptCost:         4,
		LoginRateLimit:     100,
		LoginRateWindow:    time.Minute,
		CookieName:         "sid",
		CookiePath:         "/",
		CookieHTTPOnly:     true,
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, deps auth.Dependencies) *fiber.App {
	t.Helper()
	module, err := auth.NewAuthModule(context.Background(), cfg, deps)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: web.NewErrorHandler(nil)})
	module.RegisterRoutes(app)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body, cookie string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if cookie != "" {
		req.Header.Set(fiber.HeaderCookie, "sid="+cookie)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	return resp, string(raw)
}

func exerciseFlow(t *testing.T, app *fiber.App) {
	creds := `{"username":"alice","password":"s3cret-pass"}`
	resp, _ := call(t, app, fiber.MethodPost, "/register", creds, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, _ = call(t, app, fiber.MethodPost, "/login", creds, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			cookie = c.Value
		}
	}
	require.NotEmpty(t, cookie)

	resp, body := call(t, app, fiber.MethodGet, "/secret", "", cookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"visits":1`)

	resp, _ = call(t, app, fiber.MethodGet, "/logout", "", cookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = call(t, app, fiber.MethodGet, "/secret", "", cookie)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthModule_MongoSessions(t *testing.T) {
	app := newApp(t, testConfig(config.SessionBackendMongo), auth.Dependencies{
		Users:    docstoretest.NewMemoryCollection(),
		Sessions: docstoretest.NewMemoryCollection(),
	})
	exerciseFlow(t, app)
}

func TestAuthModule_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	app := newApp(t, testConfig(config.SessionBackendRedis), auth.Dependencies{
		Users: docstoretest.NewMemoryCollection(),
		Redis: client,
	})
	exerciseFlow(t, app)
}

func TestAuthModule_RedisBackendNeedsClient(t *testing.T) {
	_, err := auth.NewAuthModule(context.Background(), testConfig(config.SessionBackendRedis), auth.Dependencies{
		Users: docstoretest.NewMemoryCollection(),
	})
	assert.Error(t, err)
}
