package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpeningc/catsync/internal/catalog"
	"github.com/corpeningc/catsync/internal/changes"
	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/engine"
)

var products = catalog.Definition{Path: "products.json", Entity: "product", NameField: "name"}

func version(doc string) conflict.Version {
	return conflict.Version{Data: []byte(doc), Present: true}
}

func TestRenderStatusClean(t *testing.T) {
	out := RenderStatus(&engine.RepoStatus{Branch: "main", Clean: true})
	assert.Contains(t, out, "On branch main")
	assert.Contains(t, out, "working copy clean")
}

func TestRenderStatusListsRecordChanges(t *testing.T) {
	st := &engine.RepoStatus{
		Branch:   "main",
		Modified: []string{"products.json"},
		Added:    []string{"notes.txt"},
		Invalid:  []string{"products.json"},
		Changes: []*changes.ChangeSet{{
			File: "products.json",
			Changes: []changes.RecordChange{
				{File: "products.json", Kind: changes.Added, RecordID: 9, Description: "Added product: Mug"},
			},
		}},
	}

	out := RenderStatus(st)
	assert.Contains(t, out, "modified:   products.json")
	assert.Contains(t, out, "added:      notes.txt")
	assert.Contains(t, out, "not valid catalog JSON")
	assert.Contains(t, out, "Added product: Mug")
	assert.Contains(t, out, "2 files changed, 1 record change")
}

func TestRenderConflicts(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fc := conflict.DetectFile(products, conflict.Sides{
		Base:   version(`[{"id": 7, "name": "Widget", "price": 10}]`),
		Local:  version(`[{"id": 7, "name": "Widget Max", "price": 10}]`),
		Remote: version(`[{"id": 7, "name": "Widget Pro", "price": 10}]`),
	})
	readme := conflict.UnparsedFile("README.md", conflict.Sides{}, "not a catalog file")
	s := conflict.NewSession(conflict.OperationMerge, "abc", []conflict.FileConflict{fc, readme}, created)

	out := RenderConflicts(s, created.Add(2*time.Hour))
	assert.Contains(t, out, "Merge conflict")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "1 record conflict in 2 files")
	assert.Contains(t, out, "Widget Max")
	assert.Contains(t, out, "needs a decision")
	assert.Contains(t, out, "README.md")
	assert.Contains(t, out, "choose local, remote or field by field")

	assert.Contains(t, RenderConflicts(nil, created), "No conflict in progress")
}

func TestRenderRemote(t *testing.T) {
	assert.Contains(t, RenderRemote(&engine.RemoteChanges{AheadBy: 2}), "2 commits ahead")

	out := RenderRemote(&engine.RemoteChanges{
		HasRemoteChanges: true,
		BehindBy:         1,
		Files:            []engine.RemoteFileChange{{Path: "products.json", Additions: 1, Deletions: 1}},
	})
	assert.Contains(t, out, "Remote has 1 commit")
	assert.Contains(t, out, "products.json")
	assert.Contains(t, out, "+1 -1")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "(none)", formatValue("x", true))
	assert.Equal(t, "null", formatValue(nil, false))
	assert.Equal(t, `"Mug"`, formatValue("Mug", false))
	assert.Equal(t, "2 items", formatValue([]any{1, 2}, false))
	assert.Equal(t, "1,200 items", plural(1200, "item"))
}

func TestStatusModelReloadsOnFileEvent(t *testing.T) {
	loads := 0
	load := func() (Snapshot, error) {
		loads++
		return Snapshot{Status: &engine.RepoStatus{Branch: "main", Clean: true}}, nil
	}
	m := NewStatusModel(load, nil)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(StatusModel)

	next, cmd := m.Update(FileEventMsg{Path: "products.json"})
	m = next.(StatusModel)
	require.NotNil(t, cmd)
	assert.True(t, m.isLoading)
	assert.Contains(t, m.View(), "changed: products.json")

	next, _ = m.Update(m.refresh())
	m = next.(StatusModel)
	assert.False(t, m.isLoading)
	assert.Equal(t, 1, loads)
	assert.Contains(t, m.View(), "working copy clean")
}

func TestChangesViewerJumpsBetweenFiles(t *testing.T) {
	sets := []*changes.ChangeSet{
		{File: "coupons.json", Changes: []changes.RecordChange{
			{Kind: changes.Added, RecordID: 1, Description: "Added coupon: SPRING10"},
			{Kind: changes.Removed, RecordID: 2, Description: "Removed coupon: OLD"},
		}},
		{File: "products.json", Changes: []changes.RecordChange{
			{Kind: changes.Modified, RecordID: 7, Description: "Price changed: 10.00 → 12.00"},
		}},
	}
	m := NewChangesViewerModel("Local changes", sets)
	assert.Equal(t, []int{0, 4}, m.offsets)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 5})
	m = next.(ChangesViewerModel)
	assert.Contains(t, m.View(), "file 1/2: coupons.json")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	m = next.(ChangesViewerModel)
	assert.Equal(t, 1, m.current)
	assert.Contains(t, m.View(), "file 2/2: products.json")

	// no file past the last one
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	m = next.(ChangesViewerModel)
	assert.Equal(t, 1, m.current)
}
