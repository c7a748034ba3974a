package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-gateway/internal/backend/backendtest"
	"voice-gateway/internal/ctx"
	"voice-gateway/internal/middleware"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func get(t *testing.T, m *Manager) (*httptest.ResponseRecorder, Payload) {
	t.Helper()
	log := zap.NewNop().Sugar()
	e := echo.New()
	e.Use(middleware.NewTrackMiddleware(log))
	e.GET("/status", func(c echo.Context) error { return m.Status(c.(*ctx.Context)) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var p Payload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return rec, p
}

func TestStatusWithoutPing(t *testing.T) {
	fake := &backendtest.Fake{PingErr: errors.New("should not be called")}
	m := NewManager(fake, "production", false)
	m.started = time.Now().Add(-90 * time.Second)

	rec, p := get(t, m)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", p.Status)
	require.Equal(t, "production", p.Env)
	require.GreaterOrEqual(t, p.Uptime, 90.0)
	require.Empty(t, p.OpenAI)
	require.NotContains(t, rec.Body.String(), "openai")
	require.Zero(t, fake.PingCalls)

	ts, err := time.Parse(timestampLayout, p.Timestamp)
	require.NoError(t, err)
	require.Equal(t, time.UTC, ts.Location())
	require.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, p.Timestamp)
}

func TestStatusPingReachable(t *testing.T) {
	fake := &backendtest.Fake{}
	rec, p := get(t, NewManager(fake, "development", true))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "reachable", p.OpenAI)
	require.Empty(t, p.OpenAIError)
	require.Equal(t, 1, fake.PingCalls)
}

func TestStatusPingUnreachable(t *testing.T) {
	fake := &backendtest.Fake{PingErr: errors.New("dial tcp: connection refused")}
	rec, p := get(t, NewManager(fake, "development", true))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "ok", p.Status)
	require.Equal(t, "unreachable", p.OpenAI)
	require.Equal(t, "dial tcp: connection refused", p.OpenAIError)
}
