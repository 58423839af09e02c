package conflict

import (
	"fmt"

	"github.com/corpeningc/catsync/internal/catalog"
	"github.com/corpeningc/catsync/internal/errors"
)

// Method selects a resolution strategy.
type Method string

const (
	MethodLocal      Method = "local"
	MethodRemote     Method = "remote"
	MethodSmartMerge Method = "smartMerge"
	MethodCustom     Method = "custom"
)

// ParseMethod accepts the method names used on the command line.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "local", "ours", "mine":
		return MethodLocal, nil
	case "remote", "theirs":
		return MethodRemote, nil
	case "smartMerge", "smart-merge", "smart", "merge":
		return MethodSmartMerge, nil
	case "custom":
		return MethodCustom, nil
	}
	return "", errors.New(errors.KindInvalid, "resolve", fmt.Errorf("unknown resolution method %q", s))
}

// FieldSelection picks the local or remote value of one field of one
// contended record.
type FieldSelection struct {
	File     string `json:"file" yaml:"file"`
	RecordID int    `json:"recordId" yaml:"recordId"`
	Field    string `json:"field" yaml:"field"`
	UseLocal bool   `json:"useLocal" yaml:"useLocal"`
}

type Resolution struct {
	Method          Method           `json:"method" yaml:"method"`
	FieldSelections []FieldSelection `json:"fieldSelections,omitempty" yaml:"fieldSelections,omitempty"`
}

// Outcome is the resolved content of one file. Delete means the file is
// removed from the working tree and the index.
type Outcome struct {
	Path   string
	Data   []byte
	Delete bool
}

// Resolve computes the resolved content of every conflicted file. Nothing
// is written; a refused resolution leaves the session untouched.
func (s *Session) Resolve(res Resolution) ([]Outcome, error) {
	switch res.Method {
	case MethodLocal:
		return s.wholesale(func(sd Sides) Version { return sd.Local }), nil
	case MethodRemote:
		return s.wholesale(func(sd Sides) Version { return sd.Remote }), nil
	case MethodSmartMerge:
		return s.smartMerge()
	case MethodCustom:
		return s.custom(res.FieldSelections)
	}
	return nil, errors.New(errors.KindInvalid, "resolve", fmt.Errorf("unknown resolution method %q", res.Method))
}

func (s *Session) wholesale(pick func(Sides) Version) []Outcome {
	out := make([]Outcome, 0, len(s.ConflictedFilePaths))
	for _, path := range s.ConflictedFilePaths {
		v := pick(s.Files[path].sides)
		out = append(out, Outcome{Path: path, Data: v.Data, Delete: !v.Present})
	}
	return out
}

// CanSmartMerge reports whether every record conflict is auto-mergeable and
// every conflicted file has a record-level view.
func (s *Session) CanSmartMerge() bool {
	for _, path := range s.ConflictedFilePaths {
		if !s.Files[path].CanAutoMerge() {
			return false
		}
	}
	return true
}

func (s *Session) smartMerge() ([]Outcome, error) {
	if !s.CanSmartMerge() {
		return nil, errors.New(errors.KindNotAutoMergeable, "smart merge", errors.ErrNotAutoMergeable)
	}
	out := make([]Outcome, 0, len(s.ConflictedFilePaths))
	for _, path := range s.ConflictedFilePaths {
		fc := s.Files[path]
		merged := fc.merge(func(rc *RecordConflict, b, l, r *catalog.Record) *catalog.Record {
			return MergeRecord(b, l, r)
		})
		o, err := encodeOutcome(fc, merged)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Session) custom(selections []FieldSelection) ([]Outcome, error) {
	byRecord := make(map[string]map[int][]FieldSelection)
	for _, sel := range selections {
		fc, ok := s.Files[sel.File]
		if !ok {
			return nil, errors.Wrapf(errors.ErrNotCatalogFile, "%s is not in conflict", sel.File)
		}
		if _, ok := fc.Record(sel.RecordID); !ok {
			return nil, errors.Wrapf(errors.ErrRecordNotFound, "%s: no conflict for record %d", sel.File, sel.RecordID)
		}
		if byRecord[sel.File] == nil {
			byRecord[sel.File] = make(map[int][]FieldSelection)
		}
		byRecord[sel.File][sel.RecordID] = append(byRecord[sel.File][sel.RecordID], sel)
	}

	out := make([]Outcome, 0, len(s.ConflictedFilePaths))
	for _, path := range s.ConflictedFilePaths {
		fc := s.Files[path]
		if fc.Unparsed {
			out = append(out, Outcome{Path: path, Data: fc.sides.Local.Data, Delete: !fc.sides.Local.Present})
			continue
		}
		chosen := byRecord[path]
		merged := fc.merge(func(rc *RecordConflict, b, l, r *catalog.Record) *catalog.Record {
			return SelectFields(rc, l, r, chosen[rc.RecordID])
		})
		o, err := encodeOutcome(fc, merged)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// MergeRecord applies local's and remote's changes to the ancestor. Fields
// both sides changed take the local value; callers check CanAutoMerge first
// so that never loses an edit.
func MergeRecord(base, local, remote *catalog.Record) *catalog.Record {
	if local == nil || remote == nil {
		if recordsEqual(base, local) {
			return remote.Clone()
		}
		return local.Clone()
	}
	merged := local.Clone()
	if base == nil {
		return merged
	}
	for _, field := range ChangedFields(base, remote) {
		if !fieldEqual(base, local, field) {
			continue
		}
		if v, ok := remote.Get(field); ok {
			merged.Set(field, v)
		} else {
			merged.Delete(field)
		}
	}
	return merged
}

// SelectFields builds a contended record from local with the selected remote
// fields. For a record deleted on one side, selecting the deleted side for
// any field deletes the record.
func SelectFields(rc *RecordConflict, local, remote *catalog.Record, selections []FieldSelection) *catalog.Record {
	if rc.LocalDeleted || rc.RemoteDeleted {
		for _, sel := range selections {
			if sel.UseLocal == rc.LocalDeleted {
				return nil
			}
		}
		if local != nil {
			return local.Clone()
		}
		return remote.Clone()
	}

	merged := local.Clone()
	for _, sel := range selections {
		if sel.UseLocal {
			continue
		}
		if v, ok := remote.Get(sel.Field); ok {
			merged.Set(sel.Field, v)
		} else {
			merged.Delete(sel.Field)
		}
	}
	return merged
}

type recordChooser func(rc *RecordConflict, base, local, remote *catalog.Record) *catalog.Record

// merge three-way merges the file. Contended records go through choose;
// every other record takes the side that changed it. Records keep local
// order with remote-only records appended in remote order.
func (fc *FileConflict) merge(choose recordChooser) *catalog.File {
	baseIdx, localIdx, remoteIdx := fc.base.Index(), fc.local.Index(), fc.remote.Index()

	merged := &catalog.File{}
	for _, id := range mergeOrder(fc.local, fc.remote) {
		b, l, r := baseIdx[id], localIdx[id], remoteIdx[id]

		var rec *catalog.Record
		if rc, ok := fc.Record(id); ok {
			rec = choose(rc, b, l, r)
		} else {
			rec = MergeRecord(b, l, r)
		}
		if rec != nil {
			merged.Records = append(merged.Records, rec)
		}
	}
	return merged
}

func encodeOutcome(fc *FileConflict, f *catalog.File) (Outcome, error) {
	data, err := f.Encode()
	if err != nil {
		return Outcome{}, errors.IO("encode "+fc.Path, err)
	}
	return Outcome{Path: fc.Path, Data: data}, nil
}
