// Package status answers the liveness probe.
package status

import (
	"context"
	"net/http"
	"time"

	"voice-gateway/internal/backend"
	"voice-gateway/internal/ctx"
	"voice-gateway/internal/shared"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type Payload struct {
	Status      string  `json:"status"`
	Uptime      float64 `json:"uptime"`
	Timestamp   string  `json:"timestamp"`
	Env         string  `json:"env"`
	OpenAI      string  `json:"openai,omitempty"`
	OpenAIError string  `json:"openai_error,omitempty"`
}

type Manager struct {
	backend backend.Adapter
	env     string
	ping    bool
	started time.Time
}

// NewManager starts the uptime clock. When ping is set every probe also
// checks that the backend answers.
func NewManager(b backend.Adapter, env string, ping bool) *Manager {
	return &Manager{backend: b, env: env, ping: ping, started: time.Now()}
}

func (m *Manager) Status(c *ctx.Context) error {
	now := time.Now()
	payload := Payload{
		Status:    "ok",
		Uptime:    now.Sub(m.started).Seconds(),
		Timestamp: now.UTC().Format(timestampLayout),
		Env:       m.env,
	}
	if !m.ping {
		return c.JSON(http.StatusOK, payload)
	}

	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), shared.DefaultPingTimeout)
	defer cancel()
	if err := m.backend.Ping(pingCtx); err != nil {
		c.Log.Warnw("Backend unreachable", "error", err.Error())
		payload.OpenAI = "unreachable"
		payload.OpenAIError = err.Error()
		return c.JSON(http.StatusInternalServerError, payload)
	}
	payload.OpenAI = "reachable"
	return c.JSON(http.StatusOK, payload)
}
