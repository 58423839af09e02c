// Package conflict turns file-level merge conflicts in catalog documents into
// record and field conflicts, and resolves them.
//
// A conflicted file is described by three versions: the common ancestor, the
// local side and the remote side. Records are matched by id across the three.
// A record is contended when both sides changed it and the results differ;
// every other record merges silently to whichever side changed it.
package conflict

import (
	"github.com/corpeningc/catsync/internal/catalog"
)

// FieldConflict is one field on which the two sides of a contended record
// disagree.
type FieldConflict struct {
	Field       string `json:"field" yaml:"field"`
	Label       string `json:"label" yaml:"label"`
	LocalValue  any    `json:"localValue" yaml:"localValue"`
	RemoteValue any    `json:"remoteValue" yaml:"remoteValue"`
	// LocalChanged and RemoteChanged report which sides edited the field
	// relative to the ancestor.
	LocalChanged  bool `json:"localChanged" yaml:"localChanged"`
	RemoteChanged bool `json:"remoteChanged" yaml:"remoteChanged"`
}

// Overlapping reports whether both sides edited the field.
func (f FieldConflict) Overlapping() bool {
	return f.LocalChanged && f.RemoteChanged
}

// RecordConflict is a record both sides changed in different ways.
type RecordConflict struct {
	RecordID       int             `json:"recordId" yaml:"recordId"`
	RecordName     string          `json:"recordName" yaml:"recordName"`
	FieldConflicts []FieldConflict `json:"fieldConflicts" yaml:"fieldConflicts"`
	// CanAutoMerge is set when the fields changed locally and the fields
	// changed remotely are disjoint.
	CanAutoMerge  bool `json:"canAutoMerge" yaml:"canAutoMerge"`
	LocalDeleted  bool `json:"localDeleted,omitempty" yaml:"localDeleted,omitempty"`
	RemoteDeleted bool `json:"remoteDeleted,omitempty" yaml:"remoteDeleted,omitempty"`
}

// Field returns the conflict for field, if any.
func (rc *RecordConflict) Field(field string) (FieldConflict, bool) {
	for _, fc := range rc.FieldConflicts {
		if fc.Field == field {
			return fc, true
		}
	}
	return FieldConflict{}, false
}

// Version is one side of a conflicted file. Present is false when the file
// does not exist on that side.
type Version struct {
	Data    []byte
	Present bool
}

// Sides holds the ancestor, local and remote versions of one file.
type Sides struct {
	Base   Version
	Local  Version
	Remote Version
}

// FileConflict is the record-level view of one conflicted file.
type FileConflict struct {
	Path    string           `json:"path" yaml:"path"`
	Entity  string           `json:"entity,omitempty" yaml:"entity,omitempty"`
	Records []RecordConflict `json:"records" yaml:"records"`
	// Unparsed is set for files that are not catalog documents or could not
	// be parsed on some side; they only resolve wholesale.
	Unparsed bool   `json:"unparsed,omitempty" yaml:"unparsed,omitempty"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`

	def                 catalog.Definition
	sides               Sides
	base, local, remote *catalog.File
}

// CanAutoMerge reports whether Smart-Merge can resolve the whole file.
func (fc *FileConflict) CanAutoMerge() bool {
	if fc.Unparsed {
		return false
	}
	for _, rc := range fc.Records {
		if !rc.CanAutoMerge {
			return false
		}
	}
	return true
}

// Record returns the conflict for id.
func (fc *FileConflict) Record(id int) (*RecordConflict, bool) {
	for i := range fc.Records {
		if fc.Records[i].RecordID == id {
			return &fc.Records[i], true
		}
	}
	return nil, false
}

// UnparsedFile describes a conflicted file that has no record-level view.
func UnparsedFile(path string, sides Sides, reason string) FileConflict {
	return FileConflict{Path: path, Unparsed: true, Reason: reason, sides: sides}
}

// DetectFile parses the three versions of a catalog file and reports its
// contended records. A side that is not present is an empty catalog.
func DetectFile(def catalog.Definition, sides Sides) FileConflict {
	base, err := catalog.Parse(sides.Base.Data)
	if err != nil {
		return UnparsedFile(def.Path, sides, "ancestor: "+err.Error())
	}
	local, err := catalog.Parse(sides.Local.Data)
	if err != nil {
		return UnparsedFile(def.Path, sides, "local: "+err.Error())
	}
	remote, err := catalog.Parse(sides.Remote.Data)
	if err != nil {
		return UnparsedFile(def.Path, sides, "remote: "+err.Error())
	}

	return FileConflict{
		Path:    def.Path,
		Entity:  def.Entity,
		Records: DetectRecords(def, base, local, remote),
		def:     def,
		sides:   sides,
		base:    base,
		local:   local,
		remote:  remote,
	}
}

// DetectRecords compares three snapshots of a file by record id. The result
// is ordered by local record order, then remote-only records.
func DetectRecords(def catalog.Definition, base, local, remote *catalog.File) []RecordConflict {
	baseIdx, localIdx, remoteIdx := base.Index(), local.Index(), remote.Index()

	var out []RecordConflict
	for _, id := range mergeOrder(local, remote, base) {
		b, l, r := baseIdx[id], localIdx[id], remoteIdx[id]
		if !contended(b, l, r) {
			continue
		}
		out = append(out, recordConflict(def, id, b, l, r))
	}
	return out
}

// contended reports whether both sides changed a record to different results.
func contended(b, l, r *catalog.Record) bool {
	return !recordsEqual(b, l) && !recordsEqual(b, r) && !recordsEqual(l, r)
}

func recordConflict(def catalog.Definition, id int, b, l, r *catalog.Record) RecordConflict {
	rc := RecordConflict{RecordID: id, LocalDeleted: l == nil, RemoteDeleted: r == nil}
	switch {
	case l != nil:
		rc.RecordName = l.Name(def.NameField)
	case r != nil:
		rc.RecordName = r.Name(def.NameField)
	}

	switch {
	case l == nil || r == nil:
		// deleted on one side, modified on the other
		survivor := l
		if survivor == nil {
			survivor = r
		}
		for _, field := range survivor.Fields() {
			v, _ := survivor.Get(field)
			fc := FieldConflict{Field: field, Label: catalog.Label(field)}
			if l != nil {
				fc.LocalValue, fc.LocalChanged = v, true
			} else {
				fc.RemoteValue, fc.RemoteChanged = v, true
			}
			rc.FieldConflicts = append(rc.FieldConflicts, fc)
		}
	case b == nil:
		// added on both sides with the same id
		for _, field := range fieldUnion(l, r) {
			lv, _ := l.Get(field)
			rv, _ := r.Get(field)
			rc.FieldConflicts = append(rc.FieldConflicts, FieldConflict{
				Field:         field,
				Label:         catalog.Label(field),
				LocalValue:    lv,
				RemoteValue:   rv,
				LocalChanged:  true,
				RemoteChanged: true,
			})
		}
	default:
		rc.CanAutoMerge = true
		for _, field := range fieldUnion(l, r, b) {
			localChanged := !fieldEqual(b, l, field)
			remoteChanged := !fieldEqual(b, r, field)
			if !localChanged && !remoteChanged || fieldEqual(l, r, field) {
				continue
			}
			lv, _ := l.Get(field)
			rv, _ := r.Get(field)
			fc := FieldConflict{
				Field:         field,
				Label:         catalog.Label(field),
				LocalValue:    lv,
				RemoteValue:   rv,
				LocalChanged:  localChanged,
				RemoteChanged: remoteChanged,
			}
			if fc.Overlapping() {
				rc.CanAutoMerge = false
			}
			rc.FieldConflicts = append(rc.FieldConflicts, fc)
		}
	}
	return rc
}

// ChangedFields returns the fields whose value or presence differs between
// the ancestor and side.
func ChangedFields(base, side *catalog.Record) []string {
	var out []string
	for _, field := range fieldUnion(side, base) {
		if !fieldEqual(base, side, field) {
			out = append(out, field)
		}
	}
	return out
}

func recordsEqual(a, b *catalog.Record) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Len() != b.Len() {
		return false
	}
	for _, field := range a.Fields() {
		if !fieldEqual(a, b, field) {
			return false
		}
	}
	return true
}

// fieldEqual compares one field of two records. A nil record has no fields.
func fieldEqual(a, b *catalog.Record, field string) bool {
	av, aok := get(a, field)
	bv, bok := get(b, field)
	if aok != bok {
		return false
	}
	return !aok || catalog.ValuesEqual(av, bv)
}

func get(r *catalog.Record, field string) (any, bool) {
	if r == nil {
		return nil, false
	}
	return r.Get(field)
}

// fieldUnion lists the fields of the records in order of first appearance.
func fieldUnion(records ...*catalog.Record) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range records {
		if r == nil {
			continue
		}
		for _, field := range r.Fields() {
			if !seen[field] {
				seen[field] = true
				out = append(out, field)
			}
		}
	}
	return out
}

// mergeOrder lists record ids in the order a merged file is written: local
// order, then remote-only ids in remote order, then ids only the ancestor
// still has.
func mergeOrder(files ...*catalog.File) []int {
	var ids []int
	seen := make(map[int]bool)
	for _, f := range files {
		for _, rec := range f.Records {
			id, ok := rec.ID()
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
