// Package ctx
package ctx

import (
	"time"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 12
)

// Correlation identifies one request in the logs. It is created once at
// request entry and must not be mutated afterwards.
type Correlation struct {
	ID            string
	StartTime     time.Time
	ClientAddress string
	UserAgent     string
}

// NewCorrelation mints a fresh id for the request behind c.
func NewCorrelation(c echo.Context) *Correlation {
	id, _ := nanoid.Generate(idAlphabet, idLength)
	ua := c.Request().UserAgent()
	if ua == "" {
		ua = "-"
	}
	return &Correlation{
		ID:            id,
		StartTime:     time.Now(),
		ClientAddress: c.RealIP(),
		UserAgent:     ua,
	}
}

func (c *Correlation) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}

func (c *Correlation) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("request_id", c.ID)
	enc.AddTime("start_time", c.StartTime)
	enc.AddString("ip", c.ClientAddress)
	enc.AddString("ua", c.UserAgent)
	return nil
}

type Context struct {
	echo.Context
	Log         *zap.SugaredLogger
	Correlation *Correlation
}
