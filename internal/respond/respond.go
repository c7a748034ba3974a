// Package respond writes capability results back to the caller.
package respond

import (
	"net/http"
	"strconv"

	"voice-gateway/internal/shared"

	"github.com/labstack/echo/v4"
)

// Result is either a TextResult or a BinaryResult.
type Result interface {
	isResult()
}

type TextResult struct {
	Text string
}

// BinaryResult is always written in full; Bytes must hold the complete body.
type BinaryResult struct {
	Bytes       []byte
	ContentType string
}

func (TextResult) isResult()   {}
func (BinaryResult) isResult() {}

// Emit writes result with a 200 status.
func Emit(c echo.Context, result Result) error {
	switch r := result.(type) {
	case TextResult:
		return c.JSON(http.StatusOK, shared.TextBody{Text: r.Text})
	case BinaryResult:
		c.Response().Header().Set(echo.HeaderContentLength, strconv.Itoa(len(r.Bytes)))
		return c.Blob(http.StatusOK, r.ContentType, r.Bytes)
	default:
		return c.JSON(http.StatusInternalServerError, shared.ErrorBody{Error: shared.ErrInternalServerError.Code})
	}
}

// Error writes {"error": code}.
func Error(c echo.Context, status int, code string) error {
	return c.JSON(status, shared.ErrorBody{Error: code})
}

// RequestError answers with the status and public code carried by rerr.
func RequestError(c echo.Context, rerr *shared.RequestError) error {
	return Error(c, rerr.StatusCode, rerr.Code)
}
