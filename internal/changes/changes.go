// Package changes computes record-level differences between two snapshots
// of a catalog file.
package changes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/corpeningc/catsync/internal/catalog"
)

// Kind tags a RecordChange.
type Kind string

const (
	Added    Kind = "added"
	Removed  Kind = "removed"
	Modified Kind = "modified"
)

// Inverse returns the change kind seen when diffing in the other direction.
func (k Kind) Inverse() Kind {
	switch k {
	case Added:
		return Removed
	case Removed:
		return Added
	}
	return k
}

type FieldDelta struct {
	Field    string `json:"field" yaml:"field"`
	Label    string `json:"label" yaml:"label"`
	OldValue any    `json:"oldValue,omitempty" yaml:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty" yaml:"newValue,omitempty"`
	// OldMissing and NewMissing distinguish an absent field from a null one.
	OldMissing bool `json:"oldMissing,omitempty" yaml:"oldMissing,omitempty"`
	NewMissing bool `json:"newMissing,omitempty" yaml:"newMissing,omitempty"`
}

// RecordChange is one added, removed or modified record.
type RecordChange struct {
	File        string          `json:"file" yaml:"file"`
	Kind        Kind            `json:"kind" yaml:"kind"`
	RecordID    int             `json:"recordId" yaml:"recordId"`
	RecordName  string          `json:"recordName" yaml:"recordName"`
	Deltas      []FieldDelta    `json:"deltas,omitempty" yaml:"deltas,omitempty"`
	Description string          `json:"description" yaml:"description"`
	Old         *catalog.Record `json:"-" yaml:"-"`
	New         *catalog.Record `json:"-" yaml:"-"`
}

// Ref identifies a record change for undo.
func (c RecordChange) Ref() Ref {
	return Ref{File: c.File, RecordID: c.RecordID, Kind: c.Kind}
}

// Ref is the caller-supplied handle of a previously reported change.
type Ref struct {
	File     string `json:"file" yaml:"file"`
	RecordID int    `json:"recordId" yaml:"recordId"`
	Kind     Kind   `json:"kind" yaml:"kind"`
}

// ChangeSet is the diff of one catalog file between two snapshots.
type ChangeSet struct {
	File    string         `json:"file" yaml:"file"`
	Changes []RecordChange `json:"changes" yaml:"changes"`
}

func (cs *ChangeSet) Empty() bool {
	return cs == nil || len(cs.Changes) == 0
}

// Count returns the number of changes of kind.
func (cs *ChangeSet) Count(kind Kind) int {
	n := 0
	for _, c := range cs.Changes {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Diff compares two snapshots of the file described by def. Either side may
// be nil, meaning the file is absent from that snapshot.
func Diff(def catalog.Definition, oldFile, newFile *catalog.File) *ChangeSet {
	if oldFile == nil {
		oldFile = &catalog.File{}
	}
	if newFile == nil {
		newFile = &catalog.File{}
	}
	oldIdx := oldFile.Index()
	newIdx := newFile.Index()

	cs := &ChangeSet{File: def.Path}
	for id, newRec := range newIdx {
		oldRec, ok := oldIdx[id]
		if !ok {
			cs.Changes = append(cs.Changes, added(def, id, newRec))
			continue
		}
		if deltas := FieldDeltas(oldRec, newRec); len(deltas) > 0 {
			cs.Changes = append(cs.Changes, modified(def, id, oldRec, newRec, deltas))
		}
	}
	for id, oldRec := range oldIdx {
		if _, ok := newIdx[id]; !ok {
			cs.Changes = append(cs.Changes, removed(def, id, oldRec))
		}
	}

	sort.Slice(cs.Changes, func(i, j int) bool {
		return cs.Changes[i].RecordID < cs.Changes[j].RecordID
	})
	return cs
}

// FieldDeltas lists the fields that differ between two versions of a
// record, in the new record's field order followed by removed fields.
func FieldDeltas(oldRec, newRec *catalog.Record) []FieldDelta {
	var deltas []FieldDelta
	seen := make(map[string]bool)

	for _, field := range newRec.Fields() {
		seen[field] = true
		nv, _ := newRec.Get(field)
		ov, had := oldRec.Get(field)
		if had && catalog.ValuesEqual(ov, nv) {
			continue
		}
		deltas = append(deltas, FieldDelta{
			Field:      field,
			Label:      catalog.Label(field),
			OldValue:   ov,
			NewValue:   nv,
			OldMissing: !had,
		})
	}
	for _, field := range oldRec.Fields() {
		if seen[field] {
			continue
		}
		ov, _ := oldRec.Get(field)
		deltas = append(deltas, FieldDelta{
			Field:      field,
			Label:      catalog.Label(field),
			OldValue:   ov,
			NewMissing: true,
		})
	}
	return deltas
}

func added(def catalog.Definition, id int, rec *catalog.Record) RecordChange {
	name := rec.Name(def.NameField)
	return RecordChange{
		File:        def.Path,
		Kind:        Added,
		RecordID:    id,
		RecordName:  name,
		Description: fmt.Sprintf("Added %s: %s", def.Entity, name),
		New:         rec,
	}
}

func removed(def catalog.Definition, id int, rec *catalog.Record) RecordChange {
	name := rec.Name(def.NameField)
	return RecordChange{
		File:        def.Path,
		Kind:        Removed,
		RecordID:    id,
		RecordName:  name,
		Description: fmt.Sprintf("Removed %s: %s", def.Entity, name),
		Old:         rec,
	}
}

func modified(def catalog.Definition, id int, oldRec, newRec *catalog.Record, deltas []FieldDelta) RecordChange {
	name := newRec.Name(def.NameField)
	return RecordChange{
		File:        def.Path,
		Kind:        Modified,
		RecordID:    id,
		RecordName:  name,
		Deltas:      deltas,
		Description: describeModified(def, name, deltas),
		Old:         oldRec,
		New:         newRec,
	}
}

func describeModified(def catalog.Definition, name string, deltas []FieldDelta) string {
	if len(deltas) == 1 {
		d := deltas[0]
		switch {
		case d.OldMissing:
			return fmt.Sprintf("%s added to %s: %s", d.Label, name, catalog.FormatValue(d.NewValue))
		case d.NewMissing:
			return fmt.Sprintf("%s removed from %s", d.Label, name)
		case d.Field == def.NameField:
			return fmt.Sprintf("Renamed %s: %s → %s", def.Entity, catalog.FormatValue(d.OldValue), catalog.FormatValue(d.NewValue))
		}
		return fmt.Sprintf("%s changed: %s → %s", d.Label, catalog.FormatValue(d.OldValue), catalog.FormatValue(d.NewValue))
	}

	labels := make([]string, len(deltas))
	for i, d := range deltas {
		labels[i] = d.Label
	}
	return fmt.Sprintf("Updated %s: %s (%s)", def.Entity, name, strings.Join(labels, ", "))
}
