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

// Strategy decides what a pull does with local changes.
type Strategy string

const (
	// StrategyAuto stops and asks the caller when there are local changes.
	StrategyAuto Strategy = "auto"
	// StrategyStash stashes local changes, integrates and re-applies them.
	StrategyStash Strategy = "stash"
	// StrategyCommit commits local changes before integrating.
	StrategyCommit Strategy = "commit"
	// StrategyForce discards local changes and matches the remote tip.
	StrategyForce Strategy = "force"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAuto, StrategyStash, StrategyCommit, StrategyForce:
		return Strategy(s), nil
	case "":
		return StrategyAuto, nil
	}
	return "", errors.New(errors.KindInvalid, "pull", fmt.Errorf("unknown pull strategy %q (want auto, stash, commit or force)", s))
}

// AutoCommitMessage is used by the commit strategy.
const AutoCommitMessage = "Auto-commit local changes before pull"

type PullState int

const (
	PullIdle PullState = iota
	PullFetching
	PullCheckingLocal
	PullStrategyDispatch
	PullIntegrating
	PullRestoring
	PullNeedsDecision
	PullConflicted
	PullDone
	PullFailed
)

var pullStateNames = map[PullState]string{
	PullIdle:             "idle",
	PullFetching:         "fetching",
	PullCheckingLocal:    "checking-local",
	PullStrategyDispatch: "strategy-dispatch",
	PullIntegrating:      "integrating",
	PullRestoring:        "restoring",
	PullNeedsDecision:    "needs-decision",
	PullConflicted:       "conflicted",
	PullDone:             "done",
	PullFailed:           "failed",
}

func (s PullState) String() string {
	if name, ok := pullStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PullState(%d)", int(s))
}

func (s PullState) terminal() bool {
	switch s {
	case PullNeedsDecision, PullConflicted, PullDone, PullFailed:
		return true
	}
	return false
}

// NeedsDecision lists the local changes the caller must decide about.
type NeedsDecision struct {
	ChangedFiles []string `json:"changedFiles" yaml:"changedFiles"`
}

// PullResult is exactly one of a final status, a decision request or an
// open conflict.
type PullResult struct {
	State         PullState         `json:"-" yaml:"-"`
	Strategy      Strategy          `json:"strategy" yaml:"strategy"`
	Stashed       bool              `json:"stashed,omitempty" yaml:"stashed,omitempty"`
	Committed     bool              `json:"committed,omitempty" yaml:"committed,omitempty"`
	Status        *RepoStatus       `json:"status,omitempty" yaml:"status,omitempty"`
	NeedsDecision *NeedsDecision    `json:"needsDecision,omitempty" yaml:"needsDecision,omitempty"`
	Conflict      *conflict.Session `json:"conflict,omitempty" yaml:"conflict,omitempty"`
}

type pullRun struct {
	e        *Engine
	strategy Strategy
	state    PullState
	err      error

	remoteRef    string
	remoteExists bool
	result       PullResult
}

// PullWithStrategy brings the remote branch into the working copy, handling
// local changes according to strategy.
func (e *Engine) PullWithStrategy(ctx context.Context, strategy Strategy) (*PullResult, error) {
	release, err := e.acquire(ctx, "pull")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.rejectIfConflicted(ctx, "pull"); err != nil {
		return nil, err
	}

	run := &pullRun{e: e, strategy: strategy, state: PullFetching}
	run.result.Strategy = strategy
	for !run.state.terminal() {
		if err := ctx.Err(); err != nil {
			run.fail(errors.New(errors.KindUnknown, "pull", err))
			break
		}
		run.step(ctx)
	}
	run.result.State = run.state

	switch run.state {
	case PullFailed:
		return nil, run.err
	case PullNeedsDecision:
		return &run.result, nil
	case PullConflicted:
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

func (r *pullRun) step(ctx context.Context) {
	from := r.state
	switch r.state {
	case PullFetching:
		r.fetch(ctx)
	case PullCheckingLocal:
		r.checkLocal(ctx)
	case PullStrategyDispatch:
		r.dispatch(ctx)
	case PullIntegrating:
		r.integrate(ctx)
	case PullRestoring:
		r.restore(ctx)
	default:
		r.fail(errors.New(errors.KindUnknown, "pull", fmt.Errorf("no transition from %s", r.state)))
	}
	r.e.logger.Debug("pull transition", slog.String("from", from.String()), slog.String("to", r.state.String()))
}

func (r *pullRun) fail(err error) {
	r.err = err
	r.state = PullFailed
	r.e.logger.Error("pull failed", logging.Op("pull"), slog.String("strategy", string(r.strategy)), logging.Err(err))
}

// fetch only updates remote-tracking refs, so it is retried.
func (r *pullRun) fetch(ctx context.Context) {
	if err := retryErr(ctx, r.e, "pull fetch", func(ctx context.Context) error {
		return r.e.repo.Fetch(ctx, "")
	}); err != nil {
		r.fail(err)
		return
	}

	var err error
	if r.remoteExists, err = r.e.repo.RemoteRefExists(ctx); err != nil {
		r.fail(err)
		return
	}
	if r.remoteRef, err = r.e.repo.RemoteRef(ctx); err != nil {
		r.fail(err)
		return
	}
	r.state = PullCheckingLocal
}

func (r *pullRun) checkLocal(ctx context.Context) {
	files, err := r.e.repo.Status(ctx)
	if err != nil {
		r.fail(err)
		return
	}
	if len(files) == 0 {
		r.state = PullIntegrating
		return
	}

	if r.strategy == StrategyAuto {
		decision := &NeedsDecision{}
		for _, f := range files {
			decision.ChangedFiles = append(decision.ChangedFiles, f.Path)
		}
		r.result.NeedsDecision = decision
		r.state = PullNeedsDecision
		return
	}
	r.state = PullStrategyDispatch
}

func (r *pullRun) dispatch(ctx context.Context) {
	switch r.strategy {
	case StrategyStash:
		msg := fmt.Sprintf("%s: before pull at %s", autostashMarker, r.e.now().Format(time.RFC3339))
		stashed, err := r.e.repo.StashPush(ctx, msg)
		if err != nil {
			r.fail(err)
			return
		}
		r.result.Stashed = stashed
		r.state = PullIntegrating

	case StrategyCommit:
		if err := r.e.repo.AddAll(ctx); err != nil {
			r.fail(err)
			return
		}
		committed, err := r.e.repo.Commit(ctx, AutoCommitMessage)
		if err != nil {
			r.fail(err)
			return
		}
		r.result.Committed = committed
		r.state = PullIntegrating

	case StrategyForce:
		if !r.remoteExists {
			r.fail(errors.New(errors.KindNotConfigured, "pull", fmt.Errorf("remote branch %s does not exist", r.remoteRef)))
			return
		}
		if err := r.e.repo.FullClean(ctx, r.remoteRef); err != nil {
			r.fail(err)
			return
		}
		r.e.logger.Info("discarded local changes", logging.Op("pull"), slog.String("ref", r.remoteRef))
		r.state = PullDone

	default:
		r.fail(errors.New(errors.KindInvalid, "pull", fmt.Errorf("unknown pull strategy %q", r.strategy)))
	}
}

func (r *pullRun) integrate(ctx context.Context) {
	if r.remoteExists {
		if err := r.e.repo.Merge(ctx, r.remoteRef); err != nil {
			if errors.IsKind(err, errors.KindConflict) {
				// an autostash stays on the stash list until the merge is resolved
				r.state = PullConflicted
				return
			}
			r.fail(err)
			return
		}
	}
	if r.result.Stashed {
		r.state = PullRestoring
		return
	}
	r.state = PullDone
}

func (r *pullRun) restore(ctx context.Context) {
	if err := r.e.repo.StashPop(ctx); err != nil {
		if errors.IsKind(err, errors.KindConflict) {
			r.state = PullConflicted
			return
		}
		r.fail(err)
		return
	}
	r.state = PullDone
}

// PullWithRetry pulls with no local-change handling, retrying network
// failures. A conflicting pull returns a conflict-class error; the session
// is then available from GetConflictDetails.
func (e *Engine) PullWithRetry(ctx context.Context) (*RepoStatus, error) {
	release, err := e.acquire(ctx, "pull")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.rejectIfConflicted(ctx, "pull"); err != nil {
		return nil, err
	}
	if err := retryErr(ctx, e, "pull", e.repo.Pull); err != nil {
		return nil, err
	}
	return e.status(ctx)
}
