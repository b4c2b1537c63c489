package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deppfellow/backboneapi/internal/config"
	"github.com/deppfellow/backboneapi/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthServer(hc config.HealthChecksConfig) *server.Server {
	logger := zerolog.Nop()
	obs := config.DefaultObservabilityConfig()
	obs.HealthChecks = hc

	return &server.Server{
		Config: &config.Config{
			Primary:       config.Primary{Env: "test"},
			Observability: obs,
		},
		Logger: &logger,
	}
}

func checkHealth(t *testing.T, s *server.Server) (int, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/status", nil), rec)
	require.NoError(t, NewHealthHandler(s).CheckHealth(c))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestCheckHealthDisabled(t *testing.T) {
	code, body := checkHealth(t, healthServer(config.HealthChecksConfig{Enabled: false}))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["environment"])
	assert.Empty(t, body["checks"])
}

func TestCheckHealthRedisDownIsReported(t *testing.T) {
	s := healthServer(config.HealthChecksConfig{
		Enabled: true,
		Timeout: time.Second,
		Checks:  []string{"redis"},
	})
	s.Redis = redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer s.Redis.Close()

	code, body := checkHealth(t, s)

	assert.Equal(t, http.StatusOK, code)
	checks := body["checks"].(map[string]any)
	redisCheck := checks["redis"].(map[string]any)
	assert.Equal(t, "unhealthy", redisCheck["status"])
	assert.NotEmpty(t, redisCheck["error"])
}
