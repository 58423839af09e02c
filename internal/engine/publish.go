package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/errors"
	"github.com/corpeningc/catsync/internal/logging"
)

// PublishState is a state of the publish orchestrator.
type PublishState int

const (
	PublishIdle PublishState = iota
	PublishStaging
	PublishCommitting
	PublishShelving
	PublishFetching
	PublishIntegrating
	PublishConflicted
	PublishPushing
	PublishRestoring
	PublishDone
	PublishFailed
)

var publishStateNames = map[PublishState]string{
	PublishIdle:        "idle",
	PublishStaging:     "staging",
	PublishCommitting:  "committing",
	PublishShelving:    "shelving",
	PublishFetching:    "fetching",
	PublishIntegrating: "integrating",
	PublishConflicted:  "conflicted",
	PublishPushing:     "pushing",
	PublishRestoring:   "restoring",
	PublishDone:        "done",
	PublishFailed:      "failed",
}

func (s PublishState) String() string {
	if name, ok := publishStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PublishState(%d)", int(s))
}

// terminal reports whether the orchestrator stops in s.
func (s PublishState) terminal() bool {
	return s == PublishDone || s == PublishFailed || s == PublishConflicted
}

type PublishOptions struct {
	// Message overrides the generated commit message.
	Message string
	// Paths restricts the commit to these files; empty commits every
	// changed catalog file. Other local edits are shelved while the remote
	// branch is integrated and restored afterwards.
	Paths []string
}

// PublishResult is either a final status or an open conflict.
type PublishResult struct {
	State        PublishState      `json:"-" yaml:"-"`
	Committed    bool              `json:"committed" yaml:"committed"`
	Shelved      bool              `json:"shelved,omitempty" yaml:"shelved,omitempty"`
	Message      string            `json:"message,omitempty" yaml:"message,omitempty"`
	Pushed       bool              `json:"pushed" yaml:"pushed"`
	PushAttempts int               `json:"pushAttempts" yaml:"pushAttempts"`
	Status       *RepoStatus       `json:"status,omitempty" yaml:"status,omitempty"`
	Conflict     *conflict.Session `json:"conflict,omitempty" yaml:"conflict,omitempty"`
}

type publishRun struct {
	e     *Engine
	opts  PublishOptions
	state PublishState
	err   error

	paths     []string
	remoteRef string
	restored  bool
	result    PublishResult
}

// Publish stages, commits, integrates the remote branch and pushes. An
// integration conflict is not an error: the result carries the session.
func (e *Engine) Publish(ctx context.Context, opts PublishOptions) (*PublishResult, error) {
	release, err := e.acquire(ctx, "publish")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.rejectIfConflicted(ctx, "publish"); err != nil {
		return nil, err
	}
	return e.runPublish(ctx, opts)
}

// ContinuePublish resumes a publish after its conflict was resolved. If the
// conflict is still open it is returned again.
func (e *Engine) ContinuePublish(ctx context.Context, opts PublishOptions) (*PublishResult, error) {
	release, err := e.acquire(ctx, "continue publish")
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := e.detectSession(ctx)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return &PublishResult{State: PublishConflicted, Conflict: session}, nil
	}
	return e.runPublish(ctx, opts)
}

func (e *Engine) runPublish(ctx context.Context, opts PublishOptions) (*PublishResult, error) {
	run := &publishRun{e: e, opts: opts, state: PublishStaging}
	for !run.state.terminal() {
		if err := ctx.Err(); err != nil {
			run.fail(errors.New(errors.KindUnknown, "publish", err))
			break
		}
		run.step(ctx)
	}
	run.result.State = run.state

	switch run.state {
	case PublishFailed:
		run.unshelve(context.WithoutCancel(ctx))
		return nil, run.err
	case PublishConflicted:
		session, err := e.detectSession(ctx)
		if err != nil {
			return nil, err
		}
		run.result.Conflict = session
		return &run.result, nil
	}

	st, err := e.status(ctx)
	if err != nil {
		return nil, err
	}
	run.result.Status = st
	return &run.result, nil
}

// step performs the work of the current state and moves to the next one.
func (r *publishRun) step(ctx context.Context) {
	from := r.state
	switch r.state {
	case PublishStaging:
		r.stage(ctx)
	case PublishCommitting:
		r.commit(ctx)
	case PublishShelving:
		r.shelve(ctx)
	case PublishFetching:
		r.fetch(ctx)
	case PublishIntegrating:
		r.integrate(ctx)
	case PublishPushing:
		r.push(ctx)
	case PublishRestoring:
		r.restore(ctx)
	default:
		r.fail(errors.New(errors.KindUnknown, "publish", fmt.Errorf("no transition from %s", r.state)))
	}
	r.e.logger.Debug("publish transition", slog.String("from", from.String()), slog.String("to", r.state.String()))
}

func (r *publishRun) fail(err error) {
	r.err = err
	r.state = PublishFailed
	r.e.logger.Error("publish failed", logging.Op("publish"), logging.Err(err))
}

func (r *publishRun) stage(ctx context.Context) {
	st, err := r.e.status(ctx)
	if err != nil {
		r.fail(err)
		return
	}

	paths := r.opts.Paths
	if len(paths) == 0 {
		paths = r.e.catalogPathsIn(st.ChangedFiles())
	}

	if err := r.e.repo.Add(ctx, paths...); err != nil {
		r.fail(err)
		return
	}
	r.paths = paths

	r.result.Message = r.opts.Message
	if r.result.Message == "" {
		r.result.Message = defaultCommitMessage(st, paths)
	}
	r.state = PublishCommitting
}

func (r *publishRun) commit(ctx context.Context) {
	committed, err := r.e.repo.Commit(ctx, r.result.Message, r.paths...)
	if err != nil {
		r.fail(err)
		return
	}
	r.result.Committed = committed
	if committed {
		r.e.logger.Info("committed", logging.Op("publish"), slog.String("message", r.result.Message))
	}
	r.state = PublishShelving
}

// shelve stashes tracked edits left out of the commit, since merging the
// remote branch refuses to overwrite them. The stash carries the autostash
// marker, so resolving or aborting a merge conflict restores it as well.
func (r *publishRun) shelve(ctx context.Context) {
	files, err := r.e.repo.Status(ctx)
	if err != nil {
		r.fail(err)
		return
	}
	dirty := false
	for _, f := range files {
		if !f.IsUntracked() {
			dirty = true
			break
		}
	}
	if !dirty {
		r.state = PublishFetching
		return
	}

	msg := fmt.Sprintf("%s: during publish at %s", autostashMarker, r.e.now().Format(time.RFC3339))
	stashed, err := r.e.repo.StashPush(ctx, msg)
	if err != nil {
		r.fail(err)
		return
	}
	r.result.Shelved = stashed
	if stashed {
		r.e.logger.Info("shelved unpublished edits", logging.Op("publish"), slog.Int("files", len(files)))
	}
	r.state = PublishFetching
}

// fetch is not retried: the caller decides whether to publish again.
func (r *publishRun) fetch(ctx context.Context) {
	if err := r.e.repo.Fetch(ctx, ""); err != nil {
		r.fail(err)
		return
	}
	r.state = PublishIntegrating
}

func (r *publishRun) integrate(ctx context.Context) {
	exists, err := r.e.repo.RemoteRefExists(ctx)
	if err != nil {
		r.fail(err)
		return
	}
	if !exists {
		// first publish of the branch
		r.state = PublishPushing
		return
	}
	if r.remoteRef == "" {
		if r.remoteRef, err = r.e.repo.RemoteRef(ctx); err != nil {
			r.fail(err)
			return
		}
	}

	if err := r.e.repo.Merge(ctx, r.remoteRef); err != nil {
		if errors.IsKind(err, errors.KindConflict) {
			r.e.logger.Info("integration stopped on conflicts", logging.Op("publish"), logging.Err(err))
			r.state = PublishConflicted
			return
		}
		r.fail(err)
		return
	}
	r.state = PublishPushing
}

func (r *publishRun) push(ctx context.Context) {
	r.result.PushAttempts++
	err := r.e.repo.Push(ctx)
	if err == nil {
		r.result.Pushed = true
		r.state = PublishDone
		if r.result.Shelved {
			r.state = PublishRestoring
		}
		return
	}
	if errors.IsKind(err, errors.KindRejected) && r.result.PushAttempts < r.e.maxPushAttempts {
		r.e.logger.Warn("push rejected, integrating again", logging.Op("publish"),
			slog.Int("attempt", r.result.PushAttempts), logging.Err(err))
		r.state = PublishFetching
		return
	}
	r.fail(err)
}

// restore brings back the shelved edits. A conflicting pop leaves a stash
// session open; the push has already happened.
func (r *publishRun) restore(ctx context.Context) {
	r.restored = true
	if err := r.e.repo.StashPop(ctx); err != nil {
		if errors.IsKind(err, errors.KindConflict) {
			r.state = PublishConflicted
			return
		}
		r.fail(err)
		return
	}
	r.state = PublishDone
}

// unshelve puts shelved edits back after a failed publish. A merge left in
// progress keeps the stash for the resolution to restore.
func (r *publishRun) unshelve(ctx context.Context) {
	if !r.result.Shelved || r.restored {
		return
	}
	if inMerge, err := r.e.repo.MergeInProgress(ctx); err != nil || inMerge {
		return
	}
	if err := r.e.repo.StashPop(ctx); err != nil {
		r.e.logger.Warn("could not restore shelved edits; they remain on the stash list",
			logging.Op("publish"), logging.Err(err))
	}
}

// defaultCommitMessage summarizes the record changes being published.
func defaultCommitMessage(st *RepoStatus, paths []string) string {
	n := 0
	for _, path := range paths {
		if cs, ok := st.ChangeSet(path); ok {
			n += len(cs.Changes)
		}
	}
	switch n {
	case 0:
		return "Update catalog"
	case 1:
		return "Update catalog (1 change)"
	}
	return fmt.Sprintf("Update catalog (%d changes)", n)
}
