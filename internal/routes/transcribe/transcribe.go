// Package transcribe turns uploaded audio into text.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"voice-gateway/internal/backend"
	"voice-gateway/internal/ctx"
	"voice-gateway/internal/middleware"
	"voice-gateway/internal/respond"
	"voice-gateway/internal/shared"
	"voice-gateway/internal/upload"

	"github.com/labstack/echo/v4"
)

const audioField = "audio"

type Manager struct {
	backend  backend.Adapter
	uploads  *upload.Manager
	language string
}

func NewManager(b backend.Adapter, uploads *upload.Manager, language string) *Manager {
	if language == "" {
		language = shared.DefaultTranscribeLanguage
	}
	return &Manager{backend: b, uploads: uploads, language: language}
}

// Transcribe answers only after the upload has been released, so the temp
// file is gone by the time the caller sees any response.
func (m *Manager) Transcribe(c *ctx.Context) (middleware.Summary, error) {
	var (
		text    string
		summary middleware.Summary
	)
	err := m.uploads.Use(c.Request(), audioField, func(a *upload.Artifact) error {
		c.Log.Infow("file", "name", a.OriginalName, "type", a.MimeType, "size", a.Size, "tmp", a.Path)

		language := m.language
		if v := strings.TrimSpace(a.Fields["language"]); v != "" {
			language = v
		}

		f, err := a.Open()
		if err != nil {
			return fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()

		// a disconnected client does not cancel the backend call
		text, err = m.backend.Transcribe(context.WithoutCancel(c.Request().Context()), f, a.OriginalName, a.MimeType, language)
		if err != nil {
			return err
		}
		summary = middleware.Summary{
			"file":     map[string]any{"name": a.OriginalName, "type": a.MimeType, "size": a.Size},
			"language": language,
			"text_len": utf8.RuneCountInString(text),
		}
		return nil
	})

	switch {
	case errors.Is(err, upload.ErrNoFileProvided):
		return middleware.Summary{"error": shared.ErrNoFile.Code}, respond.RequestError(c, shared.ErrNoFile)
	case errors.Is(err, upload.ErrPayloadTooLarge):
		return nil, echo.ErrStatusRequestEntityTooLarge
	case err != nil:
		return nil, err
	}
	return summary, respond.Emit(c, respond.TextResult{Text: text})
}
