package collection

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/deppfellow/backboneapi/internal/codec"
	"github.com/deppfellow/backboneapi/internal/errs"
	"github.com/labstack/echo/v4"
)

// Verb is the effective request method after override resolution.
type Verb string

const (
	VerbGet    Verb = "get"
	VerbPost   Verb = "post"
	VerbPut    Verb = "put"
	VerbDelete Verb = "delete"
)

// Encoding is the detected request body encoding.
type Encoding string

const (
	EncodingJSON      Encoding = "json"
	EncodingForm      Encoding = "form"
	EncodingMultipart Encoding = "multipart"
)

// Values holds decoded field values. Form fields are strings, or string
// lists when repeated; JSON fields keep their decoded types.
type Values map[string]any

// Files holds multipart uploads by field name.
type Files map[string][]*multipart.FileHeader

// MethodOverrideField is the POST field that carries the intended verb.
const MethodOverrideField = "_method"

// DefaultMaxMemory bounds the in-memory part of a multipart body.
const DefaultMaxMemory = 32 << 20

// Envelope is the normalized request.
type Envelope struct {
	Verb     Verb
	ID       string
	Data     Values
	Files    Files
	Encoding Encoding
	Query    url.Values
	Request  *http.Request
}

// Input returns the form input carried by the envelope.
func (e Envelope) Input() Input {
	return Input{Data: e.Data, Files: e.Files, Request: e.Request}
}

// Normalize turns r into an Envelope. id is the record identifier taken from
// the route, empty for collection URLs.
//
// The returned envelope always has Encoding set, even on error, so the
// failure can be shaped like any other response.
func Normalize(r *http.Request, id string, maxMemory int64) (Envelope, error) {
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}

	env := Envelope{
		ID:       id,
		Encoding: detectEncoding(r.Header.Get(echo.HeaderContentType)),
		Query:    r.URL.Query(),
		Request:  r,
		Data:     Values{},
	}

	var form url.Values
	switch env.Encoding {
	case EncodingForm:
		if err := r.ParseForm(); err != nil {
			return env, errs.NewBadRequestError("Invalid request data", false, nil, nil, nil)
		}
		form = r.PostForm
	case EncodingMultipart:
		if err := r.ParseMultipartForm(maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return env, errs.NewBadRequestError("Invalid request data", false, nil, nil, nil)
		}
		if r.MultipartForm != nil {
			form = r.MultipartForm.Value
			env.Files = Files(r.MultipartForm.File)
		}
	}

	env.Verb = Verb(strings.ToLower(r.Method))
	if env.Verb == VerbPost {
		if override := form.Get(MethodOverrideField); override != "" {
			env.Verb = Verb(strings.ToLower(override))
		}
	}
	// Route-level refusals win over body errors.
	if _, err := Dispatch(env.Verb, env.ID); err != nil {
		return env, err
	}

	if env.Encoding != EncodingJSON {
		for key, vals := range form {
			if key == MethodOverrideField {
				continue
			}
			env.Data[key] = flatten(vals)
		}
		return env, nil
	}

	// Only verbs that carry data have their body decoded.
	if (env.Verb != VerbPost && env.Verb != VerbPut) || r.Body == nil {
		return env, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return env, errs.NewBadRequestError("Invalid request data", false, nil, nil, nil)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return env, nil
	}
	data, err := codec.Decode(body)
	if err != nil {
		return env, errs.NewBadRequestError("Invalid request data", false, nil, nil, nil)
	}
	env.Data = Values(data)

	return env, nil
}

func detectEncoding(contentType string) Encoding {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}

	switch {
	case strings.Contains(mediaType, echo.MIMEApplicationForm):
		return EncodingForm
	case strings.Contains(mediaType, echo.MIMEMultipartForm):
		return EncodingMultipart
	default:
		return EncodingJSON
	}
}

func flatten(vals []string) any {
	if len(vals) == 1 {
		return vals[0]
	}
	return append([]string(nil), vals...)
}
