package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"voice-gateway/internal/ctx"
	"voice-gateway/internal/metrics"
	"voice-gateway/internal/respond"
	"voice-gateway/internal/shared"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// NewTrackMiddleware mints the request's Correlation, attaches a request
// scoped logger and writes one access log line per request.
func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := newContext(c, log)
			cc.Response().Header().Set(echo.HeaderXRequestID, cc.Correlation.ID)

			err := next(cc)
			if err != nil {
				// resolve the status before logging it
				cc.Error(err)
			}
			cc.Log.Infow("end_of_request",
				"method", cc.Request().Method,
				"path", cc.Request().URL.Path,
				"status_code", cc.Response().Status,
				"bytes", cc.Response().Size,
				"duration", cc.Correlation.Elapsed().String(),
				"ip", cc.Correlation.ClientAddress,
				"ua", cc.Correlation.UserAgent,
			)
			metrics.ResponseCodes.WithLabelValues(routeLabel(cc), fmt.Sprintf("%d", cc.Response().Status)).Inc()
			return nil
		}
	}
}

func newContext(c echo.Context, log *zap.SugaredLogger) *ctx.Context {
	if cc, ok := c.(*ctx.Context); ok {
		return cc
	}
	corr := ctx.NewCorrelation(c)
	return &ctx.Context{
		Context:     c,
		Log:         log.With("request_id", corr.ID),
		Correlation: corr,
	}
}

// routeLabel keeps the label set bounded for unmatched paths.
func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error(), "stack", string(stack))
			return respond.Error(c, http.StatusInternalServerError, shared.ErrInternalServerError.Code)
		},
	})
}

// NewHTTPErrorHandler is the catch-all for errors escaping handlers and
// middleware. Framework errors keep their status; everything else is a 500
// internal_error.
func NewHTTPErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		var rerr *shared.RequestError
		switch {
		case errors.As(err, &he):
			_ = respond.Error(c, he.Code, httpErrorCode(he.Code))
		case errors.As(err, &rerr):
			_ = respond.RequestError(c, rerr)
		default:
			log.Errorw("unhandled", "error", err, "path", c.Request().URL.Path)
			_ = respond.Error(c, http.StatusInternalServerError, shared.ErrInternalServerError.Code)
		}
	}
}

func httpErrorCode(status int) string {
	if status == http.StatusRequestEntityTooLarge {
		return "payload_too_large"
	}
	if status >= 500 {
		return shared.ErrInternalServerError.Code
	}
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}

// RequireBearer guards an endpoint with a static token. An empty token
// leaves the endpoint open.
func RequireBearer(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}
			apiKey, err := shared.ExtractAPIKey(c)
			if err != nil || apiKey != token {
				return respond.Error(c, http.StatusUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}
