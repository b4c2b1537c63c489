package collection

import (
	"math"
	"strconv"
)

// IDField is always present in serialized records.
const IDField = "id"

// DefaultPageParam is the query parameter carrying the page number.
const DefaultPageParam = "p"

// FieldSet restricts serialized fields. A nil FieldSet keeps every field.
type FieldSet []string

// PageSpec enables pagination of collection reads. Size must be positive.
type PageSpec struct {
	Size  int
	Param string
}

// Project returns the serializable mapping for one record.
func Project(r Record, fields FieldSet) map[string]any {
	out := make(map[string]any, len(r.Fields)+1)
	if fields == nil {
		for k, v := range r.Fields {
			out[k] = v
		}
	} else {
		for _, name := range fields {
			if v, ok := r.Fields[name]; ok {
				out[name] = v
			}
		}
	}
	out[IDField] = r.ID
	return out
}

// PageNumber parses a 1-indexed page number. Missing, non-numeric and
// non-positive values mean page 1.
func PageNumber(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Paginate slices records to the requested page window.
func Paginate(records []Record, page *PageSpec, pageNumber int) []Record {
	if page == nil || page.Size <= 0 {
		return records
	}
	offset := pageOffset(page.Size, pageNumber)
	if offset >= len(records) {
		return nil
	}
	end := min(offset+page.Size, len(records))
	return records[offset:end]
}

// pageOffset is the index of the first record on pageNumber, saturating at
// math.MaxInt instead of overflowing.
func pageOffset(size, pageNumber int) int {
	n := max(pageNumber, 1) - 1
	if n > math.MaxInt/size {
		return math.MaxInt
	}
	return n * size
}

// Serialize renders records as a single mapping (the first record, or an
// empty mapping) or as a paginated list of mappings.
func Serialize(records []Record, fields FieldSet, single bool, page *PageSpec, pageNumber int) any {
	if single {
		if len(records) == 0 {
			return map[string]any{}
		}
		return Project(records[0], fields)
	}

	window := Paginate(records, page, pageNumber)
	out := make([]map[string]any, 0, len(window))
	for _, r := range window {
		out = append(out, Project(r, fields))
	}
	return out
}
