package collection

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/deppfellow/backboneapi/internal/codec"
)

// Change is one field's value before and after an update.
type Change struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// Outcome values carried by AuditEvent.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
)

// AuditEvent describes one write attempt on a collection.
type AuditEvent struct {
	Collection string            `json:"collection"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor"`
	RecordID   any               `json:"record_id,omitempty"`
	Outcome    string            `json:"outcome"`
	Data       Values            `json:"data,omitempty"`
	Changes    map[string]Change `json:"changes,omitempty"`
	Errors     FieldErrors       `json:"errors,omitempty"`
	At         time.Time         `json:"at"`
}

// Auditor receives audit events after every create, update and delete
// outcome. Failures are logged and never reach the client.
type Auditor interface {
	Audit(ctx context.Context, event AuditEvent) error
}

// diff compares the submitted values with the stored record. Only fields the
// record already has are considered, and only those in mutable when it is
// non-nil. Values are compared in their encoded text form so a JSON 3 matches
// a stored int64 3.
func diff(existing Record, data Values, mutable []string) map[string]Change {
	changes := map[string]Change{}
	for field, after := range data {
		if field == IDField {
			continue
		}
		if mutable != nil && !slices.Contains(mutable, field) {
			continue
		}
		before, ok := existing.Fields[field]
		if !ok {
			continue
		}
		if fmt.Sprint(codec.Simplify(before)) == fmt.Sprint(codec.Simplify(after)) {
			continue
		}
		changes[field] = Change{Before: before, After: after}
	}
	return changes
}

func mutableFields(form Form) []string {
	if m, ok := form.(Mutator); ok {
		return m.Mutable()
	}
	return nil
}

// loggableData renders values the way responses do.
func loggableData(data Values) any {
	return codec.Simplify(map[string]any(data))
}

func fileNames(files Files) []string {
	var names []string
	for field, headers := range files {
		for _, h := range headers {
			names = append(names, field+"="+h.Filename)
		}
	}
	return names
}
