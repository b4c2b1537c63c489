// Package testutil provides in-memory collaborators for collection tests.
package testutil

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/deppfellow/backboneapi/internal/errs"
)

// MemorySource is a DataSource over a map keyed by int64 identifiers.
// Records are returned ordered by identifier.
type MemorySource struct {
	mu      sync.Mutex
	records map[int64]map[string]any
	nextID  int64

	// Err, when set, is returned by every call.
	Err error
}

// NewMemorySource seeds a source with rows; identifiers are assigned from 1.
func NewMemorySource(rows ...map[string]any) *MemorySource {
	s := &MemorySource{records: map[int64]map[string]any{}}
	for _, row := range rows {
		s.Insert(row)
	}
	return s
}

// Insert stores a copy of fields under a new identifier.
func (s *MemorySource) Insert(fields map[string]any) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.records[s.nextID] = maps.Clone(fields)
	return s.nextID
}

// Update merges fields into record id.
func (s *MemorySource) Update(id int64, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[id]
	if !ok {
		return errs.NewNotFoundError("Not found", false, nil)
	}
	maps.Copy(existing, fields)
	return nil
}

// Len returns the number of stored records.
func (s *MemorySource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemorySource) FilterByID(_ context.Context, id string) ([]collection.Record, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.records[n]
	if !ok {
		return nil, nil
	}
	return []collection.Record{{ID: n, Fields: maps.Clone(fields)}}, nil
}

func (s *MemorySource) All(context.Context) ([]collection.Record, error) {
	if s.Err != nil {
		return nil, s.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := slices.Sorted(maps.Keys(s.records))
	out := make([]collection.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, collection.Record{ID: id, Fields: maps.Clone(s.records[id])})
	}
	return out, nil
}

func (s *MemorySource) DeleteByID(_ context.Context, id string) error {
	if s.Err != nil {
		return s.Err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, n)
	return nil
}

// MemoryForm stores string-valued fields in a MemorySource. Every field
// listed in Required must be present and non-empty.
type MemoryForm struct {
	Source   *MemorySource
	Required []string
	Input    collection.Input
	Existing *collection.Record

	// Request is set through collection.RequestAware.
	Request *http.Request
}

func (f *MemoryForm) SetRequest(r *http.Request) {
	f.Request = r
}

// CreateForm returns a constructor for new records.
func CreateForm(src *MemorySource, required ...string) collection.CreateFormFunc {
	return func(in collection.Input) collection.Form {
		return &MemoryForm{Source: src, Required: required, Input: in}
	}
}

// UpdateForm returns a constructor for existing records.
func UpdateForm(src *MemorySource, required ...string) collection.UpdateFormFunc {
	return func(existing collection.Record, in collection.Input) collection.Form {
		return &MemoryForm{Source: src, Required: required, Input: in, Existing: &existing}
	}
}

func (f *MemoryForm) Validate(context.Context) collection.FieldErrors {
	fe := errs.FieldErrors{}
	for _, field := range f.Required {
		v, ok := f.Input.Data[field]
		if !ok && f.Existing != nil {
			continue
		}
		if !ok || fmt.Sprint(v) == "" {
			fe.Add(field, "is required")
		}
	}
	return fe
}

func (f *MemoryForm) Save(context.Context) (any, error) {
	fields := map[string]any{}
	maps.Copy(fields, f.Input.Data)
	for name, headers := range f.Input.Files {
		if len(headers) > 0 {
			fields[name] = headers[0].Filename
		}
	}

	if f.Existing != nil {
		id := f.Existing.ID.(int64)
		return id, f.Source.Update(id, fields)
	}
	return f.Source.Insert(fields), nil
}

// RecordingAuditor keeps every audit event it receives.
type RecordingAuditor struct {
	mu     sync.Mutex
	Events []collection.AuditEvent
	Err    error
}

func (a *RecordingAuditor) Audit(_ context.Context, event collection.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Events = append(a.Events, event)
	return a.Err
}
