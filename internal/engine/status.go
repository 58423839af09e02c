package engine

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/corpeningc/catsync/internal/catalog"
	"github.com/corpeningc/catsync/internal/changes"
	"github.com/corpeningc/catsync/internal/errors"
	"github.com/corpeningc/catsync/internal/logging"
)

// RepoStatus is the working tree compared with the last commit.
type RepoStatus struct {
	Branch   string   `json:"branch" yaml:"branch"`
	Modified []string `json:"modified" yaml:"modified"`
	Added    []string `json:"added" yaml:"added"`
	Deleted  []string `json:"deleted" yaml:"deleted"`
	// Conflicted lists unmerged paths; they are also counted as modified.
	Conflicted []string             `json:"conflicted,omitempty" yaml:"conflicted,omitempty"`
	Changes    []*changes.ChangeSet `json:"changes" yaml:"changes"`
	// Invalid lists catalog files whose working copy does not parse.
	Invalid         []string `json:"invalid,omitempty" yaml:"invalid,omitempty"`
	Clean           bool     `json:"clean" yaml:"clean"`
	MergeInProgress bool     `json:"mergeInProgress" yaml:"mergeInProgress"`
}

// ChangedFiles returns every changed path.
func (s *RepoStatus) ChangedFiles() []string {
	files := make([]string, 0, len(s.Modified)+len(s.Added)+len(s.Deleted))
	files = append(files, s.Modified...)
	files = append(files, s.Added...)
	files = append(files, s.Deleted...)
	sort.Strings(files)
	return files
}

// RecordChangeCount returns the number of record-level changes.
func (s *RepoStatus) RecordChangeCount() int {
	n := 0
	for _, cs := range s.Changes {
		n += len(cs.Changes)
	}
	return n
}

// ChangeSet returns the record changes of path, if it changed.
func (s *RepoStatus) ChangeSet(path string) (*changes.ChangeSet, bool) {
	for _, cs := range s.Changes {
		if cs.File == path {
			return cs, true
		}
	}
	return nil, false
}

// GetStatus reports local changes. It never mutates the repository and
// retries network-class failures.
func (e *Engine) GetStatus(ctx context.Context) (*RepoStatus, error) {
	return withRetry(ctx, e, "status", e.status)
}

func (e *Engine) status(ctx context.Context) (*RepoStatus, error) {
	files, err := e.repo.Status(ctx)
	if err != nil {
		return nil, err
	}
	branch, err := e.repo.CurrentBranch(ctx)
	if err != nil {
		// detached HEAD
		branch = ""
	}
	inMerge, err := e.repo.MergeInProgress(ctx)
	if err != nil {
		return nil, err
	}

	st := &RepoStatus{Branch: branch, MergeInProgress: inMerge}
	var catalogPaths []string
	for _, f := range files {
		switch {
		case f.IsUnmerged():
			st.Conflicted = append(st.Conflicted, f.Path)
			st.Modified = append(st.Modified, f.Path)
			continue
		case f.IsDeleted():
			st.Deleted = append(st.Deleted, f.Path)
		case f.IsAdded():
			st.Added = append(st.Added, f.Path)
		default:
			st.Modified = append(st.Modified, f.Path)
		}
		if _, ok := e.registry.Lookup(f.Path); ok {
			catalogPaths = append(catalogPaths, f.Path)
		}
	}
	st.Clean = len(files) == 0 && !inMerge

	if err := e.diffWorkingTree(ctx, st, catalogPaths); err != nil {
		return nil, err
	}
	return st, nil
}

// diffWorkingTree fills st.Changes with HEAD vs working tree record diffs,
// loading each file's two snapshots concurrently.
func (e *Engine) diffWorkingTree(ctx context.Context, st *RepoStatus, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	head, err := e.headRev(ctx)
	if err != nil {
		return err
	}

	sets := make([]*changes.ChangeSet, len(paths))
	invalid := make([]bool, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		def, _ := e.registry.Lookup(path)
		g.Go(func() error {
			var oldFile, newFile *catalog.File
			inner, ictx := errgroup.WithContext(gctx)
			inner.Go(func() error {
				f, err := e.snapshot(ictx, head, path)
				oldFile = f
				return err
			})
			inner.Go(func() error {
				f, err := e.store.Load(path)
				newFile = f
				return err
			})
			if err := inner.Wait(); err != nil {
				if errors.IsKind(err, errors.KindIO) {
					e.logger.Warn("skipping record diff", logging.Op("status"), slog.String("path", path), logging.Err(err))
					invalid[i] = true
					return nil
				}
				return err
			}
			sets[i] = changes.Diff(def, oldFile, newFile)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, cs := range sets {
		if invalid[i] {
			st.Invalid = append(st.Invalid, paths[i])
			continue
		}
		st.Changes = append(st.Changes, cs)
	}
	return nil
}

// catalogPathsIn returns the configured catalog paths among files, in
// configuration order.
func (e *Engine) catalogPathsIn(files []string) []string {
	changed := make(map[string]bool, len(files))
	for _, f := range files {
		changed[f] = true
	}
	var out []string
	for _, path := range e.registry.Paths() {
		if changed[path] {
			out = append(out, path)
		}
	}
	return out
}
