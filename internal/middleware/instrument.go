package middleware

import (
	"errors"
	"net/http"
	"time"

	"voice-gateway/internal/ctx"
	"voice-gateway/internal/ledger"
	"voice-gateway/internal/metrics"
	"voice-gateway/internal/respond"
	"voice-gateway/internal/shared"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Summary holds handler supplied fields for the "ok" log line.
type Summary map[string]any

// CapabilityFunc handles one capability request. Validation failures are
// answered by the handler itself and reported with a nil error. A returned
// *shared.RequestError or *echo.HTTPError goes to the echo error handler;
// any other error is treated as a capability failure.
type CapabilityFunc func(c *ctx.Context) (Summary, error)

type Instrumenter struct {
	log    *zap.SugaredLogger
	ledger ledger.Recorder
}

func NewInstrumenter(log *zap.SugaredLogger, rec ledger.Recorder) *Instrumenter {
	if rec == nil {
		rec = ledger.Nop{}
	}
	return &Instrumenter{log: log, ledger: rec}
}

// Wrap logs start, ok and error events for h with the request's correlation
// id and elapsed time. A failed call is answered with
// 500 {"error":"<capability>_failed"}; framework errors (*echo.HTTPError)
// and *shared.RequestError are passed on to the echo error handler untouched.
func (in *Instrumenter) Wrap(capability string, h CapabilityFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := newContext(cc, in.log)
		log := c.Log.With("capability", capability)
		corr := c.Correlation

		log.Infow("start", "ip", corr.ClientAddress, "ua", corr.UserAgent)

		summary, err := h(c)
		elapsed := corr.Elapsed()

		outcome := "ok"
		var he *echo.HTTPError
		var rerr *shared.RequestError
		switch {
		case err == nil:
			if c.Response().Status >= http.StatusBadRequest {
				outcome = "invalid"
			}
			log.Infow("ok", "duration", elapsed.String(), "summary", summary)
		case errors.As(err, &he):
			outcome = "rejected"
			log.Warnw("rejected", "duration", elapsed.String(), "status_code", he.Code, "error", err)
		case errors.As(err, &rerr):
			outcome = "rejected"
			log.Warnw("rejected", "duration", elapsed.String(), "status_code", rerr.StatusCode, "error", err)
		default:
			outcome = "error"
			log.Errorw("error", "duration", elapsed.String(), "error", err)
			if !c.Response().Committed {
				err = respond.Error(c, http.StatusInternalServerError, shared.FailureCode(capability))
			} else {
				err = nil
			}
		}

		status := c.Response().Status
		switch {
		case he != nil:
			status = he.Code
		case rerr != nil:
			status = rerr.StatusCode
		}
		metrics.CapabilityDuration.WithLabelValues(capability).Observe(elapsed.Seconds())
		metrics.CapabilityRequests.WithLabelValues(capability, outcome).Inc()
		in.ledger.Add(ledger.Record{
			RequestID:   corr.ID,
			Capability:  capability,
			Outcome:     outcome,
			StatusCode:  status,
			Duration:    elapsed,
			InputBytes:  max(c.Request().ContentLength, 0),
			OutputBytes: c.Response().Size,
			CreatedAt:   time.Now(),
		})
		return err
	}
}
