// Package catalog models the JSON catalog documents the engine syncs: each
// file is a top-level array of records identified by an integer id.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Definition describes one well-known catalog file.
type Definition struct {
	Path      string
	Entity    string // singular noun used in descriptions, e.g. "product"
	NameField string
}

// Registry is the fixed set of catalog files of a repository.
type Registry struct {
	defs  []Definition
	byKey map[string]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{byKey: make(map[string]Definition)}
	for _, d := range defs {
		if d.NameField == "" {
			d.NameField = "name"
		}
		if d.Entity == "" {
			d.Entity = "record"
		}
		r.defs = append(r.defs, d)
		r.byKey[d.Path] = d
	}
	return r
}

// Lookup returns the definition for a repository-relative path.
func (r *Registry) Lookup(path string) (Definition, bool) {
	d, ok := r.byKey[path]
	return d, ok
}

func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}

// Paths returns the catalog paths in configuration order.
func (r *Registry) Paths() []string {
	paths := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		paths = append(paths, d.Path)
	}
	return paths
}

// File is one snapshot of a catalog document.
type File struct {
	Records []*Record
}

// Parse decodes a catalog document. Empty content is an empty catalog, which
// is how a file absent from a snapshot is represented.
func Parse(data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &File{}, nil
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}

	seen := make(map[int]bool, len(records))
	for i, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("record %d is null", i)
		}
		id, ok := rec.ID()
		if !ok {
			return nil, fmt.Errorf("record %d has no integer id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate record id %d", id)
		}
		seen[id] = true
	}
	return &File{Records: records}, nil
}

// Encode renders the document with two-space indentation and a trailing
// newline.
func (f *File) Encode() ([]byte, error) {
	records := f.Records
	if records == nil {
		records = []*Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Index maps ids to records.
func (f *File) Index() map[int]*Record {
	idx := make(map[int]*Record, len(f.Records))
	for _, rec := range f.Records {
		if id, ok := rec.ID(); ok {
			idx[id] = rec
		}
	}
	return idx
}

// Find returns the record with id and its position.
func (f *File) Find(id int) (*Record, int) {
	for i, rec := range f.Records {
		if rid, ok := rec.ID(); ok && rid == id {
			return rec, i
		}
	}
	return nil, -1
}

// Remove deletes the record with id and reports whether it existed.
func (f *File) Remove(id int) bool {
	_, i := f.Find(id)
	if i < 0 {
		return false
	}
	f.Records = append(f.Records[:i:i], f.Records[i+1:]...)
	return true
}

// Insert places rec at position i, clamped to the file bounds.
func (f *File) Insert(i int, rec *Record) {
	if i < 0 {
		i = 0
	}
	if i > len(f.Records) {
		i = len(f.Records)
	}
	f.Records = append(f.Records[:i:i], append([]*Record{rec}, f.Records[i:]...)...)
}

// Replace swaps the record with the same id as rec, or appends it.
func (f *File) Replace(rec *Record) {
	id, _ := rec.ID()
	if _, i := f.Find(id); i >= 0 {
		f.Records[i] = rec
		return
	}
	f.Records = append(f.Records, rec)
}

// IDs returns the sorted record ids.
func (f *File) IDs() []int {
	ids := make([]int, 0, len(f.Records))
	for _, rec := range f.Records {
		if id, ok := rec.ID(); ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// IsCatalogJSON reports whether path looks like a JSON document.
func IsCatalogJSON(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".json")
}
