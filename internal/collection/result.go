package collection

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/deppfellow/backboneapi/internal/codec"
	"github.com/deppfellow/backboneapi/internal/errs"
	"github.com/labstack/echo/v4"
)

// FieldErrors is the validation payload: field name to messages.
type FieldErrors = errs.FieldErrors

// Result is the outcome of an operation. Exactly one of Payload (possibly
// nil, meaning an empty body) or Err is meaningful, selected by Err != nil.
type Result struct {
	Payload any
	Err     *errs.HTTPError
}

// Success wraps a payload.
func Success(payload any) Result {
	return Result{Payload: payload}
}

// Failure wraps an error response.
func Failure(err *errs.HTTPError) Result {
	return Result{Err: err}
}

// FailureFrom converts any error into a failed Result. Errors that are not
// *errs.HTTPError become a 500.
func FailureFrom(err error) Result {
	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return Failure(httpErr)
	}
	return Failure(errs.NewInternalServerError())
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Err == nil
}

// Status is the HTTP status the result stands for.
func (r Result) Status() int {
	if r.Err != nil {
		return r.Err.Status
	}
	return http.StatusOK
}

// Body encodes the result.
//
// Successes are JSON (an empty body for a nil payload). Validation failures
// are the JSON field → messages map. Other failures are their plain message.
func (r Result) Body() ([]byte, string, error) {
	if r.Err == nil {
		if r.Payload == nil {
			return nil, echo.MIMEApplicationJSON, nil
		}
		b, err := codec.Encode(r.Payload)
		return b, echo.MIMEApplicationJSON, err
	}

	if len(r.Err.Errors) > 0 {
		b, err := codec.Encode(r.Err.FieldErrors())
		return b, echo.MIMEApplicationJSON, err
	}
	return []byte(r.Err.Message), echo.MIMETextPlainCharsetUTF8, nil
}

var fragmentEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Fragment wraps a body in the textarea used for iframe uploads. The real
// status travels in the attribute; the transport status is always 200.
func Fragment(status int, body []byte) []byte {
	return fmt.Appendf(nil, "<textarea status='%s'>%s</textarea>",
		strconv.Itoa(status), fragmentEscaper.Replace(string(body)))
}
