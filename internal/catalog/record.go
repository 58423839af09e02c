package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// IDField is the field that identifies a record within its file.
const IDField = "id"

// Record is one catalog entry. Fields keep their document order so a record
// is written back the way it was read.
type Record struct {
	keys   []string
	fields map[string]any
}

func NewRecord() *Record {
	return &Record{fields: make(map[string]any)}
}

// RecordOf builds a record from alternating key/value pairs, for tests and
// callers constructing records in code.
func RecordOf(kv ...any) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// ID returns the record's integer id.
func (r *Record) ID() (int, bool) {
	v, ok := r.fields[IDField]
	if !ok {
		return 0, false
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func (r *Record) Get(field string) (any, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// Set assigns field, appending it to the key order if new.
func (r *Record) Set(field string, value any) {
	if r.fields == nil {
		r.fields = make(map[string]any)
	}
	if _, ok := r.fields[field]; !ok {
		r.keys = append(r.keys, field)
	}
	r.fields[field] = value
}

func (r *Record) Delete(field string) {
	if _, ok := r.fields[field]; !ok {
		return
	}
	delete(r.fields, field)
	for i, k := range r.keys {
		if k == field {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

// Fields returns field names in document order.
func (r *Record) Fields() []string {
	return append([]string(nil), r.keys...)
}

func (r *Record) Len() int {
	return len(r.keys)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{
		keys:   append([]string(nil), r.keys...),
		fields: make(map[string]any, len(r.fields)),
	}
	for k, v := range r.fields {
		c.fields[k] = cloneValue(v)
	}
	return c
}

// Name returns the display name from nameField, falling back to the id.
func (r *Record) Name(nameField string) string {
	if v, ok := r.fields[nameField]; ok {
		if s := FormatValue(v); s != "" {
			return s
		}
	}
	if id, ok := r.ID(); ok {
		return "#" + strconv.Itoa(id)
	}
	return "(unnamed)"
}

func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object, got %v", tok)
	}

	r.keys = nil
	r.fields = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		r.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	}
	return v
}
