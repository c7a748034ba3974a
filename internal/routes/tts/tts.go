// Package tts turns text into an audio payload returned inline.
package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"voice-gateway/internal/backend"
	"voice-gateway/internal/ctx"
	"voice-gateway/internal/metrics"
	"voice-gateway/internal/middleware"
	"voice-gateway/internal/respond"
	"voice-gateway/internal/shared"

	"github.com/labstack/echo/v4"
)

type Manager struct {
	backend backend.Adapter
}

func NewManager(b backend.Adapter) *Manager {
	return &Manager{backend: b}
}

type synthesis struct {
	shared.SynthesisRequest
	// ContentType carries the format exactly as the caller asked for it.
	ContentType string
}

// parseRequest applies defaults. Voice is passed through untouched; format
// is matched case-insensitively and sent to the backend lowercased.
func parseRequest(body io.Reader) (synthesis, *shared.RequestError, error) {
	var req synthesis
	if err := json.NewDecoder(body).Decode(&req.SynthesisRequest); err != nil && !errors.Is(err, io.EOF) {
		return req, nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return req, shared.ErrNoText, nil
	}
	if req.Voice == "" {
		req.Voice = shared.DefaultVoice
	}
	if req.Format == "" {
		req.Format = shared.DefaultFormat
	}
	req.ContentType = "audio/" + req.Format
	req.Format = strings.ToLower(req.Format)
	if !shared.SupportedFormats[req.Format] {
		return req, shared.ErrInvalidFormat, nil
	}
	return req, nil, nil
}

func (m *Manager) TTS(c *ctx.Context) (middleware.Summary, error) {
	req, rejected, err := parseRequest(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, shared.InternalError(fmt.Errorf("decode tts body: %w", err))
	}
	if rejected != nil {
		return middleware.Summary{"error": rejected.Code}, respond.RequestError(c, rejected)
	}

	c.Log.Infow("tts", "voice", req.Voice, "format", req.Format, "text", shared.Preview(req.Text, shared.TTSPreviewLen))

	audio, _, err := m.backend.Synthesize(context.WithoutCancel(c.Request().Context()), req.Text, req.Voice, req.Format)
	if err != nil {
		return nil, err
	}
	metrics.SynthesizedBytes.WithLabelValues(req.Format).Add(float64(len(audio)))

	return middleware.Summary{
		"bytes":  len(audio),
		"voice":  req.Voice,
		"format": req.Format,
	}, respond.Emit(c, respond.BinaryResult{Bytes: audio, ContentType: req.ContentType})
}
