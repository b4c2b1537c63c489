package handler

import (
	"net/http"

	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/deppfellow/backboneapi/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// Handler holds the dependencies shared by concrete handlers.
type Handler struct {
	server *server.Server
}

func NewHandler(s *server.Server) Handler {
	return Handler{server: s}
}

// ResponseHandler writes a collection result in one wire shape.
type ResponseHandler interface {
	Handle(c echo.Context, res collection.Result) error

	// GetOperation names the response shape in logs.
	GetOperation() string

	AddAttributes(txn *newrelic.Transaction, res collection.Result)
}

// responseHandlerFor picks the response shape for a request encoding.
// Multipart uploads arrive through a hidden iframe, which can only read the
// body of a 200 HTML page.
func responseHandlerFor(enc collection.Encoding) ResponseHandler {
	if enc == collection.EncodingMultipart {
		return FragmentResponseHandler{}
	}
	return BodyResponseHandler{}
}

// BodyResponseHandler writes the result body at the result status: JSON
// for payloads and validation errors, plain text for other failures.
type BodyResponseHandler struct{}

func (h BodyResponseHandler) Handle(c echo.Context, res collection.Result) error {
	body, contentType, err := res.Body()
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return c.NoContent(res.Status())
	}
	return c.Blob(res.Status(), contentType, body)
}

func (h BodyResponseHandler) GetOperation() string {
	return "collection"
}

func (h BodyResponseHandler) AddAttributes(txn *newrelic.Transaction, res collection.Result) {
	// http.status_code is set by EnhanceTracing.
}

// FragmentResponseHandler wraps the body in a textarea carrying the real
// status and always answers 200 text/html.
type FragmentResponseHandler struct{}

func (h FragmentResponseHandler) Handle(c echo.Context, res collection.Result) error {
	body, _, err := res.Body()
	if err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, collection.Fragment(res.Status(), body))
}

func (h FragmentResponseHandler) GetOperation() string {
	return "collection_fragment"
}

func (h FragmentResponseHandler) AddAttributes(txn *newrelic.Transaction, res collection.Result) {
	if txn != nil {
		txn.AddAttribute("collection.fragment_status", res.Status())
	}
}
