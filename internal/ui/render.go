package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/corpeningc/catsync/internal/changes"
	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/engine"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	addedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	removedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	modifiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// Success renders a confirmation line.
func Success(msg string) string {
	return messageStyle.Render(msg)
}

// Failure renders an error line.
func Failure(msg string) string {
	return errorStyle.Render(msg)
}

func kindStyle(k changes.Kind) lipgloss.Style {
	switch k {
	case changes.Added:
		return addedStyle
	case changes.Removed:
		return removedStyle
	}
	return modifiedStyle
}

func kindMarker(k changes.Kind) string {
	switch k {
	case changes.Added:
		return "+"
	case changes.Removed:
		return "-"
	}
	return "~"
}

// RenderStatus renders local changes grouped by file.
func RenderStatus(st *engine.RepoStatus) string {
	var sections []string
	sections = append(sections, titleStyle.Render("On branch "+st.Branch))

	if st.MergeInProgress || len(st.Conflicted) > 0 {
		sections = append(sections, errorStyle.Render("Conflict in progress: resolve or abort before publishing"))
	}
	if st.Clean {
		sections = append(sections, mutedStyle.Render("Nothing to publish, working copy clean"))
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	invalid := make(map[string]bool, len(st.Invalid))
	for _, p := range st.Invalid {
		invalid[p] = true
	}

	sections = append(sections, "")
	for _, path := range st.ChangedFiles() {
		line := fileLine(st, path)
		if invalid[path] {
			line += " " + errorStyle.Render("(not valid catalog JSON)")
		}
		sections = append(sections, line)

		cs, ok := st.ChangeSet(path)
		if !ok {
			continue
		}
		for _, c := range cs.Changes {
			sections = append(sections, "    "+RenderChange(c))
		}
	}

	sections = append(sections, "")
	sections = append(sections, mutedStyle.Render(fmt.Sprintf("%s changed, %s",
		plural(len(st.ChangedFiles()), "file"), plural(st.RecordChangeCount(), "record change"))))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func fileLine(st *engine.RepoStatus, path string) string {
	for _, p := range st.Conflicted {
		if p == path {
			return errorStyle.Render("  conflicted: " + path)
		}
	}
	for _, p := range st.Added {
		if p == path {
			return addedStyle.Render("  added:      " + path)
		}
	}
	for _, p := range st.Deleted {
		if p == path {
			return removedStyle.Render("  deleted:    " + path)
		}
	}
	return modifiedStyle.Render("  modified:   " + path)
}

// RenderChange renders one record change as a single line.
func RenderChange(c changes.RecordChange) string {
	return kindStyle(c.Kind).Render(kindMarker(c.Kind)+" ") + c.Description +
		mutedStyle.Render(fmt.Sprintf(" #%d", c.RecordID))
}

// RenderChangeSets renders record changes of several files, as shown by the
// changes pager.
func RenderChangeSets(sets []*changes.ChangeSet) string {
	if len(sets) == 0 {
		return mutedStyle.Render("No record changes.")
	}
	var b strings.Builder
	for i, cs := range sets {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(headerStyle.Render(cs.File))
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d added, %d removed, %d modified",
			cs.Count(changes.Added), cs.Count(changes.Removed), cs.Count(changes.Modified))))
		b.WriteString("\n")
		for _, c := range cs.Changes {
			b.WriteString("  " + RenderChange(c) + "\n")
			for _, d := range c.Deltas {
				if c.Kind != changes.Modified {
					break
				}
				b.WriteString(mutedStyle.Render(fmt.Sprintf("      %s: %s → %s",
					d.Label, formatValue(d.OldValue, d.OldMissing), formatValue(d.NewValue, d.NewMissing))) + "\n")
			}
		}
	}
	return b.String()
}

// RenderConflicts renders an open conflict session. now is used for the
// conflict age.
func RenderConflicts(s *conflict.Session, now time.Time) string {
	if s == nil {
		return mutedStyle.Render("No conflict in progress.")
	}

	var sections []string
	sections = append(sections, titleStyle.Render(fmt.Sprintf("%s conflict %s", operationLabel(s.Operation), shortID(s.ID))))
	sections = append(sections, mutedStyle.Render(fmt.Sprintf("started %s, %s in %s",
		humanize.RelTime(s.CreatedAt, now, "ago", "from now"),
		plural(s.RecordConflictCount(), "record conflict"),
		plural(len(s.ConflictedFilePaths), "file"))))

	for _, path := range s.ConflictedFilePaths {
		fc := s.Files[path]
		sections = append(sections, "")
		if fc.Unparsed {
			sections = append(sections, headerStyle.Render(path)+" "+mutedStyle.Render("("+fc.Reason+"; resolve with local or remote)"))
			continue
		}
		sections = append(sections, headerStyle.Render(path))
		if len(fc.Records) == 0 {
			sections = append(sections, mutedStyle.Render("  all record changes merge cleanly"))
		}
		for _, rc := range fc.Records {
			sections = append(sections, renderRecordConflict(rc))
		}
	}

	sections = append(sections, "")
	if s.CanSmartMerge() {
		sections = append(sections, Success("Every record can be smart-merged."))
	} else {
		sections = append(sections, Failure("Some fields were changed on both sides; choose local, remote or field by field."))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func renderRecordConflict(rc conflict.RecordConflict) string {
	var b strings.Builder
	state := addedStyle.Render("auto-mergeable")
	if !rc.CanAutoMerge {
		state = errorStyle.Render("needs a decision")
	}
	fmt.Fprintf(&b, "  %s %s %s", rc.RecordName, mutedStyle.Render(fmt.Sprintf("#%d", rc.RecordID)), state)
	switch {
	case rc.LocalDeleted:
		b.WriteString("\n" + removedStyle.Render("    deleted locally, changed remotely"))
	case rc.RemoteDeleted:
		b.WriteString("\n" + removedStyle.Render("    changed locally, deleted remotely"))
	}
	for _, f := range rc.FieldConflicts {
		marker := " "
		if f.Overlapping() {
			marker = "!"
		}
		fmt.Fprintf(&b, "\n    %s %-12s local %s  remote %s", marker, f.Label,
			sideValue(f.LocalValue, f.LocalChanged), sideValue(f.RemoteValue, f.RemoteChanged))
	}
	return b.String()
}

func sideValue(v any, changed bool) string {
	s := formatValue(v, false)
	if changed {
		return modifiedStyle.Render(s)
	}
	return mutedStyle.Render(s)
}

// RenderRemote renders the result of a remote check.
func RenderRemote(rc *engine.RemoteChanges) string {
	if !rc.HasRemoteChanges {
		msg := "Up to date with the remote."
		if rc.AheadBy > 0 {
			msg = fmt.Sprintf("Up to date with the remote, %s ahead.", plural(rc.AheadBy, "commit"))
		}
		return mutedStyle.Render(msg)
	}

	var sections []string
	sections = append(sections, titleStyle.Render(fmt.Sprintf("Remote has %s you do not have", plural(rc.BehindBy, "commit"))))
	if rc.AheadBy > 0 {
		sections = append(sections, mutedStyle.Render(fmt.Sprintf("local branch is %s ahead", plural(rc.AheadBy, "commit"))))
	}
	files := append([]engine.RemoteFileChange(nil), rc.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, f := range files {
		stat := fmt.Sprintf("+%d -%d", f.Additions, f.Deletions)
		if f.Binary {
			stat = "binary"
		}
		sections = append(sections, "  "+headerStyle.Render(f.Path)+" "+mutedStyle.Render(stat))
		if f.Changes != nil {
			for _, c := range f.Changes.Changes {
				sections = append(sections, "    "+RenderChange(c))
			}
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func formatValue(v any, missing bool) string {
	if missing {
		return "(none)"
	}
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case []any:
		return plural(len(val), "item")
	case map[string]any:
		return plural(len(val), "key")
	}
	return fmt.Sprint(v)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

func operationLabel(op conflict.Operation) string {
	if op == conflict.OperationStash {
		return "Stash"
	}
	return "Merge"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
