package ui

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/corpeningc/catsync/internal/conflict"
)

// ChooseMethod asks how to resolve the open conflict. Smart merge is only
// offered when every contended record allows it.
func ChooseMethod(s *conflict.Session) (conflict.Method, error) {
	var options []huh.Option[conflict.Method]
	method := conflict.MethodCustom
	if s.CanSmartMerge() {
		options = append(options, huh.NewOption("Smart merge (keep both sides' edits)", conflict.MethodSmartMerge))
		method = conflict.MethodSmartMerge
	}
	options = append(options,
		huh.NewOption("Pick field by field", conflict.MethodCustom),
		huh.NewOption("Keep my version", conflict.MethodLocal),
		huh.NewOption("Take the remote version", conflict.MethodRemote),
	)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[conflict.Method]().
				Title(fmt.Sprintf("Resolve %s in %s", plural(s.RecordConflictCount(), "record conflict"), plural(len(s.ConflictedFilePaths), "file"))).
				Options(options...).
				Value(&method),
		),
	).Run()
	return method, err
}

// ChooseFields asks for the value of every field both sides changed. Fields
// changed on one side only follow that side and are not asked about.
func ChooseFields(s *conflict.Session) ([]conflict.FieldSelection, error) {
	type question struct {
		sel      conflict.FieldSelection
		useLocal *bool
	}
	var (
		groups    []*huh.Group
		questions []question
	)

	for _, path := range s.ConflictedFilePaths {
		fc := s.Files[path]
		if fc.Unparsed {
			continue
		}
		for _, rc := range fc.Records {
			var fields []huh.Field
			for _, f := range rc.FieldConflicts {
				if !f.Overlapping() && !rc.LocalDeleted && !rc.RemoteDeleted {
					continue
				}
				useLocal := new(bool)
				*useLocal = true
				questions = append(questions, question{
					sel:      conflict.FieldSelection{File: path, RecordID: rc.RecordID, Field: f.Field},
					useLocal: useLocal,
				})
				fields = append(fields, huh.NewSelect[bool]().
					Title(f.Label).
					Options(
						huh.NewOption("local:  "+formatValue(f.LocalValue, rc.LocalDeleted), true),
						huh.NewOption("remote: "+formatValue(f.RemoteValue, rc.RemoteDeleted), false),
					).
					Value(useLocal))
			}
			if len(fields) == 0 {
				continue
			}
			groups = append(groups, huh.NewGroup(fields...).
				Title(fmt.Sprintf("%s: %s (#%d)", path, rc.RecordName, rc.RecordID)))
		}
	}
	if len(groups) == 0 {
		return nil, nil
	}

	if err := huh.NewForm(groups...).Run(); err != nil {
		return nil, err
	}

	selections := make([]conflict.FieldSelection, 0, len(questions))
	for _, q := range questions {
		q.sel.UseLocal = *q.useLocal
		selections = append(selections, q.sel)
	}
	return selections, nil
}
