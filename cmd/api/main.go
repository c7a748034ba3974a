package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"voice-gateway/internal/backend"
	"voice-gateway/internal/ledger"
	"voice-gateway/internal/middleware"
	"voice-gateway/internal/routers"
	"voice-gateway/internal/shared"
	"voice-gateway/internal/upload"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Flags / ENV Variables
	openaiAPIKey := flag.String("openai-api-key", "", "OpenAI API key")
	openaiBaseURL := flag.String("openai-base-url", shared.DefaultBaseURL, "OpenAI compatible base url")
	pingOpenAI := flag.Bool("ping-openai", false, "Check backend reachability on /status")
	port := flag.String("port", "3001", "Listen port")
	host := flag.String("host", "0.0.0.0", "Listen host")
	nodeEnv := flag.String("node-env", "development", "Environment name reported by /status")
	uploadDir := flag.String("upload-dir", filepath.Join(os.TempDir(), "voice-gateway-uploads"), "Temporary upload directory")
	transcribeModel := flag.String("transcribe-model", shared.DefaultTranscribeModel, "Transcription model")
	chatModel := flag.String("chat-model", shared.DefaultChatModel, "Chat model")
	ttsModel := flag.String("tts-model", shared.DefaultTTSModel, "TTS model")
	transcribeLanguage := flag.String("transcribe-language", shared.DefaultTranscribeLanguage, "Transcription language")
	persona := flag.String("persona", "", "Chat persona system prompt")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	dsn := flag.String("dsn", "", "Usage ledger DSN")
	debug := flag.Bool("debug", false, "Debug enabled")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()
	defer func() {
		_ = log.Sync()
	}()

	client, err := backend.NewClient(*openaiAPIKey,
		backend.WithBaseURL(*openaiBaseURL),
		backend.WithModels(backend.Models{
			Transcribe: *transcribeModel,
			Chat:       *chatModel,
			TTS:        *ttsModel,
		}),
	)
	if err != nil {
		panic(err)
	}

	uploads, err := upload.NewManager(*uploadDir, shared.MaxUploadBytes, log)
	if err != nil {
		panic(err)
	}

	// Usage ledger, only when a DSN is configured
	var recorder ledger.Recorder = ledger.Nop{}
	if *dsn != "" {
		db, err := sql.Open("mysql", *dsn)
		if err != nil {
			panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
		}
		err = db.Ping()
		if err != nil {
			panic(fmt.Sprintf("failed ping to sql db: %s", err))
		}
		defer func() {
			_ = db.Close()
		}()
		l := ledger.New(ledger.NewMySQL(db), log)
		defer l.Shutdown()
		recorder = l
		log.Info("Usage ledger enabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.NewHTTPErrorHandler(log)
	e.Use(middleware.NewTrackMiddleware(log))
	e.Use(middleware.NewRecoverMiddleware(log))
	e.Use(emw.CORS())

	e.GET(("/ping"), func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.RequireBearer(*metricsAPIKey))

	base := e.Group("")
	routers.RegisterStatusRoutes(base, client, *nodeEnv, *pingOpenAI)
	routers.RegisterCapabilityRoutes(base, routers.CapabilityConfig{
		Backend:     client,
		Uploads:     uploads,
		Ledger:      recorder,
		Language:    *transcribeLanguage,
		Persona:     *persona,
		Temperature: shared.DefaultChatTemperature,
	}, log)

	addr := net.JoinHostPort(*host, *port)
	go func() {
		log.Infow("Listening", "addr", addr, "env", *nodeEnv)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalw("shutting down the server", "error", err)
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorw("failed graceful shutdown", "error", err)
	}
}
