// Package routers
package routers

import (
	"voice-gateway/internal/backend"
	"voice-gateway/internal/ctx"
	"voice-gateway/internal/ledger"
	"voice-gateway/internal/middleware"
	"voice-gateway/internal/routes/chat"
	"voice-gateway/internal/routes/status"
	"voice-gateway/internal/routes/transcribe"
	"voice-gateway/internal/routes/tts"
	"voice-gateway/internal/shared"
	"voice-gateway/internal/upload"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type CapabilityConfig struct {
	Backend     backend.Adapter
	Uploads     *upload.Manager
	Ledger      ledger.Recorder
	Language    string
	Persona     string
	Temperature float64
}

func RegisterCapabilityRoutes(e *echo.Group, cfg CapabilityConfig, log *zap.SugaredLogger) {
	instrument := middleware.NewInstrumenter(log, cfg.Ledger)
	jsonLimit := emw.BodyLimit(shared.MaxJSONBody)

	transcribeManager := transcribe.NewManager(cfg.Backend, cfg.Uploads, cfg.Language)
	chatManager := chat.NewManager(cfg.Backend, cfg.Persona, cfg.Temperature)
	ttsManager := tts.NewManager(cfg.Backend)

	e.POST("/transcribe", instrument.Wrap(shared.CapabilityTranscription, transcribeManager.Transcribe))
	e.POST("/chat", instrument.Wrap(shared.CapabilityChat, chatManager.Chat), jsonLimit)
	e.POST("/tts", instrument.Wrap(shared.CapabilityTTS, ttsManager.TTS), jsonLimit)
}

func RegisterStatusRoutes(e *echo.Group, b backend.Adapter, env string, ping bool) {
	statusManager := status.NewManager(b, env, ping)
	e.GET("/status", func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		return statusManager.Status(c)
	})
}
