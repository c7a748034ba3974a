package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"voice-gateway/internal/ctx"
	"voice-gateway/internal/ledger"
	"voice-gateway/internal/respond"
	"voice-gateway/internal/shared"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memLedger struct {
	mu      sync.Mutex
	records []ledger.Record
}

func (m *memLedger) Add(r ledger.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func newServer(t *testing.T, capability string, h CapabilityFunc) (*echo.Echo, *observer.ObservedLogs, *memLedger) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core).Sugar()
	rec := &memLedger{}

	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)
	e.Use(NewTrackMiddleware(log))
	e.Use(NewRecoverMiddleware(log))
	e.POST("/run", NewInstrumenter(log, rec).Wrap(capability, h))
	return e, logs, rec
}

func serve(e *echo.Echo) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func messages(logs *observer.ObservedLogs) []string {
	var out []string
	for _, entry := range logs.All() {
		out = append(out, entry.Message)
	}
	return out
}

func TestWrapSuccess(t *testing.T) {
	e, logs, led := newServer(t, shared.CapabilityChat, func(c *ctx.Context) (Summary, error) {
		require.NotEmpty(t, c.Correlation.ID)
		return Summary{"reply_len": 3}, respond.Emit(c, respond.TextResult{Text: "oi!"})
	})

	rec := serve(e)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"text":"oi!"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	require.Equal(t, []string{"start", "ok", "end_of_request"}, messages(logs))
	start := logs.FilterMessage("start").All()[0].ContextMap()
	require.Equal(t, "test-agent", start["ua"])
	require.Equal(t, rec.Header().Get(echo.HeaderXRequestID), start["request_id"])
	require.Equal(t, shared.CapabilityChat, start["capability"])
	ok := logs.FilterMessage("ok").All()[0].ContextMap()
	require.Contains(t, ok, "duration")
	require.Contains(t, ok, "summary")

	require.Len(t, led.records, 1)
	require.Equal(t, "ok", led.records[0].Outcome)
	require.Equal(t, http.StatusOK, led.records[0].StatusCode)
	require.Equal(t, rec.Header().Get(echo.HeaderXRequestID), led.records[0].RequestID)
}

func TestWrapFailureIsCapabilityScoped(t *testing.T) {
	e, logs, led := newServer(t, shared.CapabilityTranscription, func(c *ctx.Context) (Summary, error) {
		return nil, &shared.BackendError{Capability: shared.CapabilityTranscription, Err: errors.New("boom")}
	})

	rec := serve(e)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"transcription_failed"}`, rec.Body.String())
	require.Equal(t, []string{"start", "error", "end_of_request"}, messages(logs))
	require.Equal(t, zapcore.ErrorLevel, logs.FilterMessage("error").All()[0].Level)
	require.Equal(t, "error", led.records[0].Outcome)
	require.Equal(t, http.StatusInternalServerError, led.records[0].StatusCode)
}

func TestWrapValidationShortCircuit(t *testing.T) {
	e, logs, led := newServer(t, shared.CapabilityTTS, func(c *ctx.Context) (Summary, error) {
		return Summary{"error": shared.ErrNoText.Code}, respond.RequestError(c, shared.ErrNoText)
	})

	rec := serve(e)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"no_text"}`, rec.Body.String())
	require.Equal(t, []string{"start", "ok", "end_of_request"}, messages(logs))
	require.Equal(t, "invalid", led.records[0].Outcome)
}

func TestWrapPassesFrameworkErrors(t *testing.T) {
	e, logs, led := newServer(t, shared.CapabilityTranscription, func(c *ctx.Context) (Summary, error) {
		return nil, echo.ErrStatusRequestEntityTooLarge
	})

	rec := serve(e)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.JSONEq(t, `{"error":"payload_too_large"}`, rec.Body.String())
	require.Equal(t, []string{"start", "rejected", "end_of_request"}, messages(logs))
	require.Equal(t, http.StatusRequestEntityTooLarge, led.records[0].StatusCode)
}

func TestWrapPassesRequestErrorsToCatchAll(t *testing.T) {
	e, logs, led := newServer(t, shared.CapabilityChat, func(c *ctx.Context) (Summary, error) {
		return nil, shared.InternalError(errors.New("unexpected EOF"))
	})

	rec := serve(e)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
	require.Equal(t, []string{"start", "rejected", "end_of_request"}, messages(logs))
	require.Equal(t, "rejected", led.records[0].Outcome)
	require.Equal(t, http.StatusInternalServerError, led.records[0].StatusCode)
}

func TestWrapFailureAfterCommitDoesNotRewrite(t *testing.T) {
	e, _, _ := newServer(t, shared.CapabilityTTS, func(c *ctx.Context) (Summary, error) {
		_ = respond.Emit(c, respond.BinaryResult{Bytes: []byte("abc"), ContentType: "audio/mp3"})
		return nil, errors.New("late failure")
	})

	rec := serve(e)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "abc", rec.Body.String())
}

func TestPanicFallsThroughToInternalError(t *testing.T) {
	e, logs, _ := newServer(t, shared.CapabilityChat, func(c *ctx.Context) (Summary, error) {
		panic("nil map")
	})

	rec := serve(e)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
	require.Len(t, logs.FilterMessage("Api Panic").All(), 1)
	require.Len(t, logs.FilterMessage("end_of_request").All(), 1)
}
