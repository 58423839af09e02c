package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpeningc/catsync/internal/changes"
	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/errors"
)

func TestOpenRejectsNonRepository(t *testing.T) {
	requireGit(t)
	_, err := Open(context.Background(), t.TempDir(), testConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotAVcsRepo))
}

func TestPublishAndPull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "price", json.Number("12.00"))

	res, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, PublishDone, res.State)
	assert.True(t, res.Committed)
	assert.True(t, res.Pushed)
	assert.Equal(t, "Update catalog (1 change)", res.Message)
	assert.True(t, res.Status.Clean)

	pulled, err := f.eb.PullWithStrategy(ctx, StrategyAuto)
	require.NoError(t, err)
	assert.Equal(t, PullDone, pulled.State)
	assert.Nil(t, pulled.NeedsDecision)
	assert.True(t, pulled.Status.Clean)
	assert.Equal(t, json.Number("12.00"), fieldOf(t, readCatalog(t, f.b, "products.json"), 7, "price"))
}

func TestPublishNothingToCommit(t *testing.T) {
	f := newFixture(t)

	res, err := f.ea.Publish(context.Background(), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, PublishDone, res.State)
	assert.False(t, res.Committed)
	assert.True(t, res.Status.Clean)
}

func TestStatusReportsRecordChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "stock", json.Number("0"))
	writeFile(t, f.a, "notes.txt", "changed\n")

	st, err := f.ea.GetStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Clean)
	assert.Equal(t, "main", st.Branch)
	assert.ElementsMatch(t, []string{"products.json", "notes.txt"}, st.Modified)
	assert.Equal(t, 1, st.RecordChangeCount())

	cs, ok := st.ChangeSet("products.json")
	require.True(t, ok)
	require.Len(t, cs.Changes, 1)
	assert.Equal(t, changes.Modified, cs.Changes[0].Kind)
	assert.Equal(t, 7, cs.Changes[0].RecordID)
	assert.Equal(t, "Stock changed: 5 → 0", cs.Changes[0].Description)
}

func TestStatusMarksInvalidCatalog(t *testing.T) {
	f := newFixture(t)

	writeFile(t, f.a, "coupons.json", "{not json")

	st, err := f.ea.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"coupons.json"}, st.Invalid)
	assert.Contains(t, st.Modified, "coupons.json")
}

// Scenario: disjoint field edits on the same record merge automatically.
func TestPublishConflictSmartMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "price", json.Number("12.00"))
	_, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	editRecord(t, f.b, "products.json", 7, "stock", json.Number("0"))
	res, err := f.eb.Publish(ctx, PublishOptions{})
	require.NoError(t, err)
	require.Equal(t, PublishConflicted, res.State)
	require.NotNil(t, res.Conflict)

	session := res.Conflict
	assert.Equal(t, conflict.OperationMerge, session.Operation)
	assert.Equal(t, []string{"products.json"}, session.ConflictedFilePaths)
	fc := session.Files["products.json"]
	require.NotNil(t, fc)
	require.Len(t, fc.Records, 1)
	rc := fc.Records[0]
	assert.Equal(t, 7, rc.RecordID)
	assert.Equal(t, "Widget", rc.RecordName)
	assert.True(t, rc.CanAutoMerge)

	// the session is stable while nothing changes
	again, err := f.eb.GetConflictDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.ID, again.ID)

	// every mutating operation is refused while the conflict is open
	_, err = f.eb.PullWithStrategy(ctx, StrategyAuto)
	assert.True(t, errors.IsKind(err, errors.KindBusy))
	_, err = f.eb.Publish(ctx, PublishOptions{})
	assert.True(t, errors.IsKind(err, errors.KindBusy))

	resolved, err := f.eb.ResolveConflict(ctx, conflict.MethodSmartMerge)
	require.NoError(t, err)
	assert.Equal(t, session.ID, resolved.SessionID)
	assert.Equal(t, []string{"products.json"}, resolved.ResolvedFiles)
	assert.Nil(t, resolved.FollowUp)

	open, err := f.eb.GetConflictDetails(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)
	inMerge, err := f.eb.Repo().MergeInProgress(ctx)
	require.NoError(t, err)
	assert.False(t, inMerge)

	merged := readCatalog(t, f.b, "products.json")
	assert.Equal(t, json.Number("12.00"), fieldOf(t, merged, 7, "price"))
	assert.Equal(t, json.Number("0"), fieldOf(t, merged, 7, "stock"))

	cont, err := f.eb.ContinuePublish(ctx, PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, PublishDone, cont.State)
	assert.True(t, cont.Pushed)

	pulled, err := f.ea.PullWithStrategy(ctx, StrategyAuto)
	require.NoError(t, err)
	assert.Equal(t, PullDone, pulled.State)
	assert.Equal(t, json.Number("0"), fieldOf(t, readCatalog(t, f.a, "products.json"), 7, "stock"))
}

// Scenario: both sides rename the same record; smart merge is refused and a
// field selection decides.
func TestPublishConflictFieldSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "name", "Widget Pro")
	_, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	editRecord(t, f.b, "products.json", 7, "name", "Widget Max")
	res, err := f.eb.Publish(ctx, PublishOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Conflict)

	rc := res.Conflict.Files["products.json"].Records[0]
	assert.False(t, rc.CanAutoMerge)
	name, ok := rc.Field("name")
	require.True(t, ok)
	assert.Equal(t, "Widget Max", name.LocalValue)
	assert.Equal(t, "Widget Pro", name.RemoteValue)

	_, err = f.eb.ResolveConflict(ctx, conflict.MethodSmartMerge)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotAutoMergeable))

	// a refused resolution leaves the conflict untouched
	still, err := f.eb.GetConflictDetails(ctx)
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, res.Conflict.ID, still.ID)

	_, err = f.eb.ResolveConflictWithFieldSelections(ctx, []conflict.FieldSelection{
		{File: "products.json", RecordID: 7, Field: "name", UseLocal: false},
	})
	require.NoError(t, err)
	assert.Equal(t, "Widget Pro", fieldOf(t, readCatalog(t, f.b, "products.json"), 7, "name"))

	cont, err := f.eb.ContinuePublish(ctx, PublishOptions{})
	require.NoError(t, err)
	assert.True(t, cont.Pushed)
}

func TestAbortConflictKeepsLocalCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "name", "Widget Pro")
	_, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	editRecord(t, f.b, "products.json", 7, "name", "Widget Max")
	res, err := f.eb.Publish(ctx, PublishOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Conflict)

	require.NoError(t, f.eb.AbortConflict(ctx))

	open, err := f.eb.GetConflictDetails(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)
	assert.Equal(t, "Widget Max", fieldOf(t, readCatalog(t, f.b, "products.json"), 7, "name"))

	err = f.eb.AbortConflict(ctx)
	assert.True(t, errors.Is(err, errors.ErrNoConflict))
}

func TestResolveWithoutConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.ea.ResolveConflict(context.Background(), conflict.MethodLocal)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoConflict))
}

func TestPullAutoNeedsDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.b, "products.json", 3, "stock", json.Number("1"))

	res, err := f.eb.PullWithStrategy(ctx, StrategyAuto)
	require.NoError(t, err)
	assert.Equal(t, PullNeedsDecision, res.State)
	require.NotNil(t, res.NeedsDecision)
	assert.Equal(t, []string{"products.json"}, res.NeedsDecision.ChangedFiles)

	// nothing was touched
	assert.Equal(t, json.Number("1"), fieldOf(t, readCatalog(t, f.b, "products.json"), 3, "stock"))
}

func TestPullCommitStrategy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "price", json.Number("12.00"))
	_, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	writeFile(t, f.b, "notes.txt", "local notes\n")
	res, err := f.eb.PullWithStrategy(ctx, StrategyCommit)
	require.NoError(t, err)
	assert.Equal(t, PullDone, res.State)
	assert.True(t, res.Committed)
	assert.True(t, res.Status.Clean)
	assert.Equal(t, AutoCommitMessage, gitRun(t, f.b, "log", "-1", "--format=%s", "HEAD^1"))
}

// Scenario: force pull throws away every local edit.
func TestPullForceDiscardsLocalChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "price", json.Number("12.00"))
	_, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	editRecord(t, f.b, "products.json", 3, "stock", json.Number("1"))
	editRecord(t, f.b, "coupons.json", 1, "percent", json.Number("50"))
	writeFile(t, f.b, "notes.txt", "scratch\n")
	writeFile(t, f.b, "untracked.txt", "junk\n")

	res, err := f.eb.PullWithStrategy(ctx, StrategyForce)
	require.NoError(t, err)
	assert.Equal(t, PullDone, res.State)
	assert.True(t, res.Status.Clean)
	assert.Equal(t, gitRun(t, f.b, "rev-parse", "origin/main"), gitRun(t, f.b, "rev-parse", "HEAD"))

	products := readCatalog(t, f.b, "products.json")
	assert.Equal(t, json.Number("12.00"), fieldOf(t, products, 7, "price"))
	assert.Equal(t, json.Number("12"), fieldOf(t, products, 3, "stock"))
	assert.NoFileExists(t, f.b+"/untracked.txt")
}

func TestPullStashConflictOpensStashSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "price", json.Number("12.00"))
	_, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	editRecord(t, f.b, "products.json", 7, "price", json.Number("15.00"))
	res, err := f.eb.PullWithStrategy(ctx, StrategyStash)
	require.NoError(t, err)
	assert.True(t, res.Stashed)
	require.Equal(t, PullConflicted, res.State)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, conflict.OperationStash, res.Conflict.Operation)

	price, ok := res.Conflict.Files["products.json"].Records[0].Field("price")
	require.True(t, ok)
	assert.Equal(t, json.Number("15.00"), price.LocalValue)
	assert.Equal(t, json.Number("12.00"), price.RemoteValue)

	_, err = f.eb.ResolveConflict(ctx, conflict.MethodLocal)
	require.NoError(t, err)

	entries, err := f.eb.Repo().StashList(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	st, err := f.eb.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"products.json"}, st.Modified)
	assert.False(t, st.MergeInProgress)
	assert.Equal(t, json.Number("15.00"), fieldOf(t, readCatalog(t, f.b, "products.json"), 7, "price"))
}

func TestPullStashRestoresCleanly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "price", json.Number("12.00"))
	_, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	editRecord(t, f.b, "coupons.json", 1, "percent", json.Number("15"))
	res, err := f.eb.PullWithStrategy(ctx, StrategyStash)
	require.NoError(t, err)
	assert.Equal(t, PullDone, res.State)
	assert.True(t, res.Stashed)
	assert.Equal(t, []string{"coupons.json"}, res.Status.Modified)
	assert.Equal(t, json.Number("12.00"), fieldOf(t, readCatalog(t, f.b, "products.json"), 7, "price"))
}

func TestPullWithRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "coupons.json", 1, "code", "SUMMER20")
	_, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	st, err := f.eb.PullWithRetry(ctx)
	require.NoError(t, err)
	assert.True(t, st.Clean)
	assert.Equal(t, "SUMMER20", fieldOf(t, readCatalog(t, f.b, "coupons.json"), 1, "code"))
}

func TestRestoreFileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	committed, err := f.ea.store.ReadRaw("products.json")
	require.NoError(t, err)

	editRecord(t, f.a, "products.json", 7, "price", json.Number("99"))
	require.NoError(t, f.ea.Repo().Add(ctx, "products.json"))

	for range 2 {
		require.NoError(t, f.ea.RestoreFile(ctx, "products.json"))
		st, err := f.ea.GetStatus(ctx)
		require.NoError(t, err)
		assert.True(t, st.Clean)

		got, err := f.ea.store.ReadRaw("products.json")
		require.NoError(t, err)
		assert.Equal(t, committed, got)
	}
}

func TestUndoChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	working := readCatalog(t, f.a, "products.json")
	require.True(t, working.Remove(3))
	rec, _ := working.Find(7)
	rec.Set("price", json.Number("8.00"))
	working.Insert(len(working.Records), mustRecord(t, `{"id": 9, "name": "Mug", "price": 6.00, "stock": 40}`))
	require.NoError(t, f.ea.store.Save("products.json", working))

	st, err := f.ea.GetStatus(ctx)
	require.NoError(t, err)
	cs, ok := st.ChangeSet("products.json")
	require.True(t, ok)
	require.Len(t, cs.Changes, 3)

	require.NoError(t, f.ea.UndoChange(ctx, changes.Ref{File: "products.json", RecordID: 7, Kind: changes.Modified}))
	st, err = f.ea.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.RecordChangeCount())
	assert.Equal(t, json.Number("10.00"), fieldOf(t, readCatalog(t, f.a, "products.json"), 7, "price"))

	require.NoError(t, f.ea.UndoChange(ctx, changes.Ref{File: "products.json", RecordID: 3, Kind: changes.Removed}))
	assert.Equal(t, []int{3, 7, 9}, readCatalog(t, f.a, "products.json").IDs())

	require.NoError(t, f.ea.UndoChange(ctx, changes.Ref{File: "products.json", RecordID: 9, Kind: changes.Added}))
	st, err = f.ea.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Clean)

	err = f.ea.UndoChange(ctx, changes.Ref{File: "products.json", RecordID: 9, Kind: changes.Added})
	assert.True(t, errors.Is(err, errors.ErrRecordNotFound))
	err = f.ea.UndoChange(ctx, changes.Ref{File: "notes.txt", RecordID: 1, Kind: changes.Modified})
	assert.True(t, errors.Is(err, errors.ErrNotCatalogFile))
}

func TestOperationsRefusedWhileLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.ea.Repo().Lock(ctx)
	require.NoError(t, err)
	release, err := l.TryAcquire("test")
	require.NoError(t, err)

	_, err = f.ea.Publish(ctx, PublishOptions{})
	assert.True(t, errors.IsKind(err, errors.KindBusy))
	_, err = f.ea.PullWithStrategy(ctx, StrategyAuto)
	assert.True(t, errors.IsKind(err, errors.KindBusy))
	assert.True(t, errors.IsKind(f.ea.RestoreFile(ctx, "products.json"), errors.KindBusy))

	// a second binding on the same working copy sees the file lock
	other := openEngine(t, f.a)
	_, err = other.Publish(ctx, PublishOptions{})
	assert.True(t, errors.IsKind(err, errors.KindBusy))

	release()
	_, err = f.ea.Publish(ctx, PublishOptions{})
	assert.NoError(t, err)
}

func TestCheckRemoteChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rc, err := f.eb.CheckRemoteChanges(ctx)
	require.NoError(t, err)
	assert.False(t, rc.HasRemoteChanges)

	editRecord(t, f.a, "products.json", 7, "price", json.Number("12.00"))
	_, err = f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	rc, err = f.eb.CheckRemoteChanges(ctx)
	require.NoError(t, err)
	assert.True(t, rc.HasRemoteChanges)
	assert.Equal(t, 1, rc.BehindBy)
	assert.Equal(t, 0, rc.AheadBy)
	require.Len(t, rc.Files, 1)
	assert.Equal(t, "products.json", rc.Files[0].Path)
	require.NotNil(t, rc.Files[0].Changes)
	assert.Equal(t, 1, rc.Files[0].Changes.Count(changes.Modified))

	// checking does not integrate
	assert.Equal(t, json.Number("10.00"), fieldOf(t, readCatalog(t, f.b, "products.json"), 7, "price"))
}

func TestCheckPotentialConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.a, "products.json", 7, "name", "Widget Pro")
	_, err := f.ea.Publish(ctx, PublishOptions{})
	require.NoError(t, err)

	editRecord(t, f.b, "products.json", 7, "name", "Widget Max")
	editRecord(t, f.b, "coupons.json", 1, "percent", json.Number("20"))

	preview, err := f.eb.CheckPotentialConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, "products.json", preview[0].Path)
	require.Len(t, preview[0].Records, 1)
	assert.False(t, preview[0].Records[0].CanAutoMerge)
}

func TestRemoteURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.eb.ValidateRemoteMatches(ctx, "file://"+f.remote+"/")
	require.NoError(t, err)
	assert.True(t, m.Matches)
	assert.Equal(t, f.remote, m.CurrentURL)

	m, err = f.eb.ValidateRemoteMatches(ctx, "https://github.com/acme/catalog.git")
	require.NoError(t, err)
	assert.False(t, m.Matches)

	require.NoError(t, f.eb.SetRemoteURL(ctx, "https://github.com/acme/catalog.git"))
	m, err = f.eb.ValidateRemoteMatches(ctx, "git@github.com:acme/catalog")
	require.NoError(t, err)
	assert.True(t, m.Matches)
}

func TestResetToRemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editRecord(t, f.b, "products.json", 7, "stock", json.Number("0"))
	gitRun(t, f.b, "commit", "-q", "-am", "local only")
	writeFile(t, f.b, "notes.txt", "dirty\n")

	require.NoError(t, f.eb.ResetToRemote(ctx))
	assert.Equal(t, gitRun(t, f.b, "rev-parse", "origin/main"), gitRun(t, f.b, "rev-parse", "HEAD"))
	st, err := f.eb.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Clean)
}
