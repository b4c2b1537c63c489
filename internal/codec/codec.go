// Package codec converts values to and from the JSON text exchanged with
// clients.
//
// Encoding is deliberately permissive: timestamps become ISO-8601 strings,
// 16-byte UUID arrays become canonical UUID text and anything the JSON
// encoder cannot represent (channels, funcs, complex numbers) falls back to
// its fmt string form instead of failing the response.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// TimeFormat is the layout used for every timestamp in a response.
const TimeFormat = time.RFC3339Nano

// DecodeError reports a request body that could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "invalid request body: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode renders v as JSON text.
func Encode(v any) ([]byte, error) {
	return json.Marshal(Simplify(v))
}

// Decode parses a JSON object into a field mapping.
//
// Anything other than a single JSON object (arrays, scalars, trailing data,
// malformed text) is a *DecodeError.
func Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if dec.More() {
		return nil, &DecodeError{Err: fmt.Errorf("unexpected data after JSON object")}
	}
	if out == nil {
		// "null" decodes without error but is not an object.
		return nil, &DecodeError{Err: fmt.Errorf("expected a JSON object")}
	}

	return out, nil
}

var (
	jsonMarshaler = reflect.TypeFor[json.Marshaler]()
	timeType      = reflect.TypeFor[time.Time]()
)

// Simplify rewrites v into a tree the standard JSON encoder always accepts.
//
// Values that already marshal themselves are returned untouched.
func Simplify(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.Format(TimeFormat)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(TimeFormat)
	case [16]byte:
		return uuid.UUID(t).String()
	case uuid.UUID:
		return t.String()
	case json.Marshaler:
		return t
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number, []byte:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Simplify(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Simplify(val)
		}
		return out
	}

	return simplifyValue(reflect.ValueOf(v))
}

func simplifyValue(rv reflect.Value) any {
	if rv.Type().Implements(jsonMarshaler) || rv.Type() == timeType {
		return Simplify(rv.Interface())
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Simplify(rv.Elem().Interface())

	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key()
			name, ok := key.Interface().(string)
			if !ok {
				name = fmt.Sprint(key.Interface())
			}
			out[name] = Simplify(iter.Value().Interface())
		}
		return out

	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = Simplify(rv.Index(i).Interface())
		}
		return out

	case reflect.Struct, reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.Interface()
	}

	return fmt.Sprint(rv.Interface())
}
