package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/errors"
	"github.com/corpeningc/catsync/internal/git"
	"github.com/corpeningc/catsync/internal/logging"
)

// ResolveResult acknowledges an applied resolution. Restoring a pending
// autostash can itself conflict; FollowUp then holds the new session.
type ResolveResult struct {
	SessionID     string            `json:"sessionId" yaml:"sessionId"`
	Method        conflict.Method   `json:"method" yaml:"method"`
	ResolvedFiles []string          `json:"resolvedFiles" yaml:"resolvedFiles"`
	FollowUp      *conflict.Session `json:"followUp,omitempty" yaml:"followUp,omitempty"`
}

// ResolveConflict resolves the open conflict with local, remote or
// smartMerge.
func (e *Engine) ResolveConflict(ctx context.Context, method conflict.Method) (*ResolveResult, error) {
	if method == conflict.MethodCustom {
		return nil, errors.New(errors.KindInvalid, "resolve", fmt.Errorf("custom resolution needs field selections"))
	}
	return e.resolve(ctx, conflict.Resolution{Method: method})
}

// ResolveConflictWithFieldSelections resolves contended records field by
// field. Unselected fields keep the local value.
func (e *Engine) ResolveConflictWithFieldSelections(ctx context.Context, selections []conflict.FieldSelection) (*ResolveResult, error) {
	return e.resolve(ctx, conflict.Resolution{Method: conflict.MethodCustom, FieldSelections: selections})
}

func (e *Engine) resolve(ctx context.Context, res conflict.Resolution) (*ResolveResult, error) {
	release, err := e.acquire(ctx, "resolve")
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := e.detectSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New(errors.KindInvalid, "resolve", errors.ErrNoConflict)
	}

	// computed before anything is written so a refused resolution leaves
	// the conflict exactly as it was
	outcomes, err := session.Resolve(res)
	if err != nil {
		return nil, err
	}

	result := &ResolveResult{SessionID: session.ID, Method: res.Method}
	for _, o := range outcomes {
		if err := e.applyOutcome(ctx, o); err != nil {
			return nil, err
		}
		result.ResolvedFiles = append(result.ResolvedFiles, o.Path)
	}

	switch session.Operation {
	case conflict.OperationMerge:
		if _, err := e.repo.Commit(ctx, ""); err != nil {
			return nil, err
		}
		follow, err := e.popAutostash(ctx)
		if err != nil {
			return nil, err
		}
		result.FollowUp = follow
	case conflict.OperationStash:
		// leave the restored edits as ordinary local changes
		if err := e.repo.Reset(ctx, git.ResetMixed, ""); err != nil {
			return nil, err
		}
		if err := e.repo.StashDrop(ctx, ""); err != nil {
			return nil, err
		}
	}

	e.logger.Info("conflict resolved", logging.Op("resolve"), slog.String("session", session.ID),
		slog.String("method", string(res.Method)), slog.Int("files", len(outcomes)))
	return result, nil
}

func (e *Engine) applyOutcome(ctx context.Context, o conflict.Outcome) error {
	if o.Delete {
		if err := e.store.Delete(o.Path); err != nil {
			return err
		}
		return e.repo.Remove(ctx, o.Path)
	}
	if err := e.store.WriteRaw(o.Path, o.Data); err != nil {
		return err
	}
	return e.repo.Add(ctx, o.Path)
}

// popAutostash re-applies local changes stashed by a pull whose merge
// stopped on conflicts.
func (e *Engine) popAutostash(ctx context.Context) (*conflict.Session, error) {
	entry, err := e.autostash(ctx)
	if err != nil || entry == nil {
		return nil, err
	}
	if err := e.repo.StashPop(ctx); err != nil {
		if errors.IsKind(err, errors.KindConflict) {
			return e.detectSession(ctx)
		}
		return nil, err
	}
	e.logger.Info("restored local changes", logging.Op("resolve"), slog.String("stash", entry.Ref))
	return nil, nil
}

// AbortConflict abandons the open conflict. A merge is aborted and any
// pending autostash is re-applied; a conflicting stash pop is undone and
// the stash entry kept.
func (e *Engine) AbortConflict(ctx context.Context) error {
	release, err := e.acquire(ctx, "abort")
	if err != nil {
		return err
	}
	defer release()

	session, err := e.detectSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return errors.New(errors.KindInvalid, "abort", errors.ErrNoConflict)
	}

	switch session.Operation {
	case conflict.OperationMerge:
		if err := e.repo.MergeAbort(ctx); err != nil {
			return err
		}
		if _, err := e.popAutostash(ctx); err != nil {
			return err
		}
	case conflict.OperationStash:
		if err := e.repo.Reset(ctx, git.ResetHard, "HEAD"); err != nil {
			return err
		}
	}
	e.logger.Info("conflict aborted", logging.Op("abort"), slog.String("session", session.ID))
	return nil
}
