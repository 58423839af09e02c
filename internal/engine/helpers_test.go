package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corpeningc/catsync/internal/catalog"
	"github.com/corpeningc/catsync/internal/config"
)

const seedProducts = `[
  {"id": 3, "name": "Gadget", "price": 4.50, "stock": 12},
  {"id": 7, "name": "Widget", "price": 10.00, "stock": 5}
]`

const seedCoupons = `[{"id": 1, "code": "SPRING10", "percent": 10}]`

// fixture is a bare remote shared by two working copies.
type fixture struct {
	remote string
	a, b   string
	ea, eb *Engine
}

func requireGit(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping git integration test in short mode")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func configureIdentity(t *testing.T, dir string) {
	t.Helper()
	gitRun(t, dir, "config", "user.name", "Catalog Editor")
	gitRun(t, dir, "config", "user.email", "editor@example.com")
	gitRun(t, dir, "config", "commit.gpgsign", "false")
	gitRun(t, dir, "config", "core.autocrlf", "false")
}

// writeCatalog writes doc in the canonical encoding used by the store.
func writeCatalog(t *testing.T, dir, name, doc string) {
	t.Helper()
	f, err := catalog.Parse([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, catalog.NewOsStore(dir).Save(name, f))
}

func readCatalog(t *testing.T, dir, name string) *catalog.File {
	t.Helper()
	f, err := catalog.NewOsStore(dir).Load(name)
	require.NoError(t, err)
	return f
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Retry.Backoff = 10 * time.Millisecond
	return cfg
}

func openEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	e, err := Open(context.Background(), dir, testConfig(), nil)
	require.NoError(t, err)
	return e
}

// newFixture seeds a remote with products.json, coupons.json and notes.txt
// and clones it twice.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	requireGit(t)

	root := t.TempDir()
	f := &fixture{
		remote: filepath.Join(root, "remote.git"),
		a:      filepath.Join(root, "a"),
		b:      filepath.Join(root, "b"),
	}

	require.NoError(t, os.MkdirAll(f.remote, 0o755))
	gitRun(t, f.remote, "init", "--bare", "-q")
	gitRun(t, f.remote, "symbolic-ref", "HEAD", "refs/heads/main")

	require.NoError(t, os.MkdirAll(f.a, 0o755))
	gitRun(t, f.a, "init", "-q")
	gitRun(t, f.a, "symbolic-ref", "HEAD", "refs/heads/main")
	configureIdentity(t, f.a)
	writeCatalog(t, f.a, "products.json", seedProducts)
	writeCatalog(t, f.a, "coupons.json", seedCoupons)
	writeFile(t, f.a, "notes.txt", "catalog notes\n")
	gitRun(t, f.a, "add", "-A")
	gitRun(t, f.a, "commit", "-q", "-m", "Seed catalog")
	gitRun(t, f.a, "remote", "add", "origin", f.remote)
	gitRun(t, f.a, "push", "-q", "-u", "origin", "main")

	gitRun(t, root, "clone", "-q", f.remote, f.b)
	configureIdentity(t, f.b)

	f.ea = openEngine(t, f.a)
	f.eb = openEngine(t, f.b)
	return f
}

// editRecord rewrites one field of one record in the working copy.
func editRecord(t *testing.T, dir, file string, id int, field string, value any) {
	t.Helper()
	store := catalog.NewOsStore(dir)
	f, err := store.Load(file)
	require.NoError(t, err)
	rec, _ := f.Find(id)
	require.NotNil(t, rec, "record %d", id)
	rec.Set(field, value)
	require.NoError(t, store.Save(file, f))
}

func fieldOf(t *testing.T, f *catalog.File, id int, field string) any {
	t.Helper()
	rec, _ := f.Find(id)
	require.NotNil(t, rec, "record %d", id)
	v, _ := rec.Get(field)
	return v
}

func mustRecord(t *testing.T, doc string) *catalog.Record {
	t.Helper()
	rec := catalog.NewRecord()
	require.NoError(t, rec.UnmarshalJSON([]byte(doc)))
	return rec
}
