// Package engine synchronizes catalog files with a remote git branch.
//
// The Engine exposes the caller-facing operations: status and remote
// queries, the publish and pull orchestrators, conflict resolution, and
// file/record undo. Orchestrations are single-writer per working directory
// and fail with a busy error instead of queuing. Nothing is cached between
// calls; every query recomputes its answer from the repository.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corpeningc/catsync/internal/catalog"
	"github.com/corpeningc/catsync/internal/config"
	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/errors"
	"github.com/corpeningc/catsync/internal/git"
	"github.com/corpeningc/catsync/internal/logging"
)

// autostashMarker prefixes the message of stashes the engine creates: the
// pull stash strategy and edits shelved during a selective publish.
const autostashMarker = "catsync-autostash"

type Engine struct {
	repo     *git.Repo
	registry *catalog.Registry
	store    *catalog.Store
	logger   *slog.Logger

	retry           config.RetryConfig
	maxPushAttempts int
	now             func() time.Time
}

type Option func(*Engine)

// WithStore replaces the working-tree catalog store.
func WithStore(s *catalog.Store) Option {
	return func(e *Engine) { e.store = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the time source used for sessions without a recorded
// start time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over an existing repository binding.
func New(repo *git.Repo, cfg config.Config, opts ...Option) *Engine {
	defs := make([]catalog.Definition, 0, len(cfg.Catalog))
	for _, f := range cfg.Catalog {
		defs = append(defs, catalog.Definition{Path: f.Path, Entity: f.Entity, NameField: f.NameField})
	}

	e := &Engine{
		repo:            repo,
		registry:        catalog.NewRegistry(defs...),
		store:           catalog.NewOsStore(repo.WorkDir),
		logger:          logging.Discard(),
		retry:           cfg.Retry,
		maxPushAttempts: cfg.Publish.MaxPushAttempts,
		now:             time.Now,
	}
	if e.maxPushAttempts < 1 {
		e.maxPushAttempts = 1
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logging.Component("engine"))
	return e
}

// Open binds an engine to the git working copy at dir.
func Open(ctx context.Context, dir string, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	repo := git.New(dir,
		git.WithRemote(cfg.Remote),
		git.WithBranch(cfg.Branch),
		git.WithLogger(logger.With(logging.Component("git"))),
	)
	if !repo.IsRepository(ctx) {
		return nil, errors.New(errors.KindNotAVcsRepo, "open", fmt.Errorf("%s is not a git working copy", dir))
	}
	return New(repo, cfg, WithLogger(logger)), nil
}

// Repo returns the underlying repository binding.
func (e *Engine) Repo() *git.Repo {
	return e.repo
}

// Registry returns the configured catalog files.
func (e *Engine) Registry() *catalog.Registry {
	return e.registry
}

// acquire takes the single-writer lock for op.
func (e *Engine) acquire(ctx context.Context, op string) (func(), error) {
	l, err := e.repo.Lock(ctx)
	if err != nil {
		return nil, err
	}
	return l.TryAcquire(op)
}

// rejectIfConflicted fails with busy while a merge or stash conflict is open.
func (e *Engine) rejectIfConflicted(ctx context.Context, op string) error {
	inMerge, err := e.repo.MergeInProgress(ctx)
	if err != nil {
		return err
	}
	unmerged, err := e.repo.UnmergedPaths(ctx)
	if err != nil {
		return err
	}
	if inMerge || len(unmerged) > 0 {
		return errors.New(errors.KindBusy, op, fmt.Errorf("%w: resolve or abort the open conflict first", errors.ErrBusy))
	}
	return nil
}

// GetConflictDetails returns the open conflict, or nil when the repository
// has no merge or stash conflict in progress.
func (e *Engine) GetConflictDetails(ctx context.Context) (*conflict.Session, error) {
	return e.detectSession(ctx)
}

func (e *Engine) detectSession(ctx context.Context) (*conflict.Session, error) {
	mergeHead, err := e.repo.MergeHead(ctx)
	if err != nil {
		return nil, err
	}
	unmerged, err := e.repo.UnmergedPaths(ctx)
	if err != nil {
		return nil, err
	}
	if mergeHead == "" && len(unmerged) == 0 {
		return nil, nil
	}

	op := conflict.OperationMerge
	head := mergeHead
	createdAt, ok := e.repo.MergeStartedAt(ctx)
	if mergeHead == "" {
		// unmerged paths without MERGE_HEAD come from a stash pop
		op = conflict.OperationStash
		if entries, err := e.repo.StashList(ctx); err == nil && len(entries) > 0 {
			head = entries[0].Message
		}
		createdAt, ok = e.indexChangedAt(ctx)
	}
	if !ok {
		createdAt = e.now()
	}

	files := make([]conflict.FileConflict, len(unmerged))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range unmerged {
		g.Go(func() error {
			sides, err := conflict.LoadSides(gctx, e.repo, op, path)
			if err != nil {
				return err
			}
			if def, ok := e.registry.Lookup(path); ok {
				files[i] = conflict.DetectFile(def, sides)
			} else {
				files[i] = conflict.UnparsedFile(path, sides, errors.ErrNotCatalogFile.Error())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := conflict.NewSession(op, head, files, createdAt)
	e.logger.Debug("conflict session", slog.String("id", s.ID), slog.String("operation", string(op)),
		slog.Int("files", len(files)), slog.Int("records", s.RecordConflictCount()))
	return s, nil
}

// indexChangedAt approximates when a stash pop stopped on conflicts.
func (e *Engine) indexChangedAt(ctx context.Context) (time.Time, bool) {
	gitDir, err := e.repo.GitDir(ctx)
	if err != nil {
		return time.Time{}, false
	}
	info, err := os.Stat(filepath.Join(gitDir, "index"))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// version reads path at rev as one side of a three-way comparison.
func (e *Engine) version(ctx context.Context, rev, path string) (conflict.Version, error) {
	if rev == "" {
		return conflict.Version{}, nil
	}
	data, err := e.repo.ShowFile(ctx, rev, path)
	if err != nil {
		if errors.Is(err, errors.ErrPathNotFound) {
			return conflict.Version{}, nil
		}
		return conflict.Version{}, err
	}
	return conflict.Version{Data: data, Present: true}, nil
}

// workingVersion reads path from the working tree.
func (e *Engine) workingVersion(path string) (conflict.Version, error) {
	data, err := e.store.ReadRaw(path)
	if err != nil {
		return conflict.Version{}, err
	}
	return conflict.Version{Data: data, Present: data != nil}, nil
}

// snapshot parses path at rev. A path missing from rev is an empty catalog.
func (e *Engine) snapshot(ctx context.Context, rev, path string) (*catalog.File, error) {
	v, err := e.version(ctx, rev, path)
	if err != nil {
		return nil, err
	}
	f, err := catalog.Parse(v.Data)
	if err != nil {
		return nil, errors.IO(fmt.Sprintf("parse %s:%s", rev, path), err)
	}
	return f, nil
}

// headRev returns "HEAD", or "" on an unborn branch.
func (e *Engine) headRev(ctx context.Context) (string, error) {
	ok, err := e.repo.HasHead(ctx)
	if err != nil || !ok {
		return "", err
	}
	return "HEAD", nil
}

// autostash returns the pending pull autostash, if it is the top entry.
func (e *Engine) autostash(ctx context.Context) (*git.StashEntry, error) {
	entries, err := e.repo.StashList(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 || !strings.Contains(entries[0].Message, autostashMarker) {
		return nil, nil
	}
	return &entries[0], nil
}
