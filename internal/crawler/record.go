package crawler

import (
	"fmt"
	"strings"
)

// Record is one parsed output row: an insertion-ordered map of field name to value.
// Overwriting a key keeps its original position.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord builds a record from alternating key/value pairs. A trailing key without a
// value is stored with an empty value.
func NewRecord(pairs ...string) *Record {
	r := &Record{values: make(map[string]string, len(pairs)/2)}
	for i := 0; i < len(pairs); i += 2 {
		val := ""
		if i+1 < len(pairs) {
			val = pairs[i+1]
		}
		r.Set(pairs[i], val)
	}
	return r
}

// Set stores value under key.
func (r *Record) Set(key, value string) *Record {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	return r
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Project returns the values for fields, in that order. Keys not listed are ignored;
// a listed key missing from the record is an error.
func (r *Record) Project(fields []string) ([]string, error) {
	out := make([]string, 0, len(fields))
	var missing []string
	for _, f := range fields {
		v, ok := r.Get(f)
		if !ok {
			missing = append(missing, f)
			continue
		}
		out = append(out, v)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("record missing fields %s", strings.Join(missing, ","))
	}
	return out, nil
}

// Map copies the record into a plain map.
func (r *Record) Map() map[string]string {
	out := make(map[string]string, r.Len())
	if r == nil {
		return out
	}
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// String renders the record as {k=v, ...} in field order.
func (r *Record) String() string {
	if r == nil {
		return "{}"
	}
	parts := make([]string, 0, len(r.keys))
	for _, k := range r.keys {
		parts = append(parts, k+"="+r.values[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
