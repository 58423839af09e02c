package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corpeningc/catsync/internal/changes"
	"github.com/corpeningc/catsync/internal/errors"
	"github.com/corpeningc/catsync/internal/logging"
)

// RestoreFile discards the working-tree and staged edits of one file,
// returning it to its last committed content. Restoring a clean file is a
// no-op.
func (e *Engine) RestoreFile(ctx context.Context, path string) error {
	release, err := e.acquire(ctx, "restore")
	if err != nil {
		return err
	}
	defer release()

	if err := e.repo.RestorePath(ctx, path); err != nil {
		return err
	}
	e.logger.Info("restored file", logging.Op("restore"), slog.String("path", path))
	return nil
}

// UndoChange reverts a single reported record change in the working copy,
// leaving every other pending change in the file intact.
func (e *Engine) UndoChange(ctx context.Context, ref changes.Ref) error {
	release, err := e.acquire(ctx, "undo")
	if err != nil {
		return err
	}
	defer release()

	if _, ok := e.registry.Lookup(ref.File); !ok {
		return errors.Wrapf(errors.ErrNotCatalogFile, "undo %s", ref.File)
	}
	head, err := e.headRev(ctx)
	if err != nil {
		return err
	}
	committed, err := e.snapshot(ctx, head, ref.File)
	if err != nil {
		return err
	}
	working, err := e.store.Load(ref.File)
	if err != nil {
		return err
	}

	notFound := errors.Wrapf(errors.ErrRecordNotFound, "undo %s record %d", ref.File, ref.RecordID)
	switch ref.Kind {
	case changes.Added:
		if !working.Remove(ref.RecordID) {
			return notFound
		}
	case changes.Removed:
		rec, idx := committed.Find(ref.RecordID)
		if rec == nil {
			return notFound
		}
		if cur, _ := working.Find(ref.RecordID); cur != nil {
			working.Replace(rec.Clone())
		} else {
			working.Insert(idx, rec.Clone())
		}
	case changes.Modified:
		rec, _ := committed.Find(ref.RecordID)
		if cur, _ := working.Find(ref.RecordID); rec == nil || cur == nil {
			return notFound
		}
		working.Replace(rec.Clone())
	default:
		return errors.New(errors.KindInvalid, "undo", fmt.Errorf("unknown change kind %q", ref.Kind))
	}

	if err := e.store.Save(ref.File, working); err != nil {
		return err
	}
	e.logger.Info("undid record change", logging.Op("undo"), slog.String("path", ref.File),
		slog.Int("record", ref.RecordID), slog.String("kind", string(ref.Kind)))
	return nil
}
