package errs

import (
	"sort"
	"strings"
)

// FieldError represents a single field-level validation error.
// Example:
//
//	{ "field": "name", "error": "is required" }
type FieldError struct {
	// Field is the field name/key the error relates to (e.g. "name").
	Field string `json:"field"`

	// Error is the human-readable error message.
	Error string `json:"error"`
}

// FieldErrors groups validation messages by field name.
//
// This is the payload clients receive when a form fails validation:
//
//	{ "name": ["is required"], "quantity": ["must be at least 0"] }
//
// Non-field errors are stored under NonFieldKey.
type FieldErrors map[string][]string

// NonFieldKey holds messages that do not belong to a single field.
const NonFieldKey = "__all__"

// Add appends a message for field.
func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Empty reports whether there are no errors at all.
func (fe FieldErrors) Empty() bool {
	return len(fe) == 0
}

// List flattens the map into FieldError values ordered by field name,
// so HTTPError.Errors stays deterministic.
func (fe FieldErrors) List() []FieldError {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var out []FieldError
	for _, field := range fields {
		for _, msg := range fe[field] {
			out = append(out, FieldError{Field: field, Error: msg})
		}
	}
	return out
}

// GroupFieldErrors is the inverse of FieldErrors.List.
func GroupFieldErrors(list []FieldError) FieldErrors {
	out := FieldErrors{}
	for _, e := range list {
		out.Add(e.Field, e.Error)
	}
	return out
}

// ActionType is a string-based enum describing what the client should do.
type ActionType string

const (
	// ActionTypeRedirect tells the client it should redirect somewhere.
	// Usually "Value" holds the URL or route.
	ActionTypeRedirect ActionType = "redirect"
)

// Action describes an optional "what the client should do next" instruction.
type Action struct {
	// Type is the kind of action (e.g. "redirect").
	Type ActionType `json:"type"`

	// Message is human-readable guidance for the client/UI.
	Message string `json:"message"`

	// Value is the payload for the action (e.g. redirect URL).
	Value string `json:"value"`
}

// HTTPError is the error shape every failure is reduced to. Code is
// machine-readable (e.g. "BAD_REQUEST"); Override marks messages meant to be
// shown to users as-is.
type HTTPError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	Override bool   `json:"override"`

	// Errors holds field-level validation errors, typically for form inputs.
	Errors []FieldError `json:"errors"`

	// Action is an optional client instruction (redirect, etc.).
	Action *Action `json:"action"`
}

// Error returns the Message, so printing/logging the error shows the message.
func (e *HTTPError) Error() string {
	return e.Message
}

// Is matches any *HTTPError regardless of status or code.
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)

	return ok
}

// WithMessage returns a *copy* of this HTTPError with Message replaced.
func (e *HTTPError) WithMessage(message string) *HTTPError {
	return &HTTPError{
		Code:     e.Code,
		Message:  message,
		Status:   e.Status,
		Override: e.Override,
		Errors:   e.Errors,
		Action:   e.Action,
	}
}

// FieldErrors returns the validation errors grouped by field.
func (e *HTTPError) FieldErrors() FieldErrors {
	return GroupFieldErrors(e.Errors)
}

// MakeUpperCaseWithUnderscores turns "Bad Request" into "BAD_REQUEST".
func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}
