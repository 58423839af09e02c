package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/corpeningc/catsync/internal/errors"
	"github.com/corpeningc/catsync/internal/lock"
	"github.com/corpeningc/catsync/internal/logging"
)

// LockFileName is created inside the git dir to guard orchestrations.
const LockFileName = "catsync.lock"

// Repo binds git operations to one working directory, remote and branch.
type Repo struct {
	WorkDir string
	Remote  string
	// Branch is the branch to sync; empty means the checked-out branch.
	Branch string

	exec   CommandExecutor
	logger *slog.Logger

	lockOnce sync.Once
	lock     *lock.Lock
	lockErr  error
}

type Option func(*Repo)

func WithRemote(remote string) Option {
	return func(r *Repo) { r.Remote = remote }
}

func WithBranch(branch string) Option {
	return func(r *Repo) { r.Branch = branch }
}

func WithExecutor(e CommandExecutor) Option {
	return func(r *Repo) { r.exec = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Repo) { r.logger = l }
}

func New(workDir string, opts ...Option) *Repo {
	repo := &Repo{
		WorkDir: workDir,
		Remote:  "origin",
		exec:    NewExecExecutor(),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Lock returns the single-writer lock owned by this binding. The lock file
// lives in the repository's git dir.
func (repo *Repo) Lock(ctx context.Context) (*lock.Lock, error) {
	repo.lockOnce.Do(func() {
		gitDir, err := repo.GitDir(ctx)
		if err != nil {
			repo.lockErr = err
			return
		}
		repo.lock = lock.New(filepath.Join(gitDir, LockFileName))
	})
	return repo.lock, repo.lockErr
}

// run executes git and converts a failure into a classified error.
func (repo *Repo) run(ctx context.Context, op string, args ...string) (string, error) {
	stdout, stderr, err := repo.exec.Run(ctx, repo.WorkDir, args...)
	repo.logger.Debug("git", logging.Op(op), slog.Any("args", args), logging.Err(err))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout, contextFailure(op, ctxErr)
		}
		return stdout, formatCommandError(op, err, stdout, stderr)
	}
	return stdout, nil
}

// runStatus executes git and reports only the exit code, for commands
// that answer a question through it (diff --quiet, rev-parse --verify).
func (repo *Repo) runStatus(ctx context.Context, op string, args ...string) (int, error) {
	stdout, stderr, err := repo.exec.Run(ctx, repo.WorkDir, args...)
	code := exitCode(err)
	if err != nil && ctx.Err() != nil {
		return code, contextFailure(op, ctx.Err())
	}
	if err != nil && code < 0 {
		return code, formatCommandError(op, err, stdout, stderr)
	}
	if code > 1 {
		return code, formatCommandError(op, err, stdout, stderr)
	}
	return code, nil
}

func formatCommandError(operation string, err error, stdout, stderr string) error {
	if err == nil {
		return nil
	}
	output := strings.TrimSpace(stderr)
	if output == "" {
		output = strings.TrimSpace(stdout)
	}
	return errors.NewWithOutput(classify(stdout+"\n"+stderr), operation, err, output)
}

// contextFailure classifies an abandoned command. A deadline is treated as
// a network timeout so read paths retry it.
func contextFailure(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.KindNetwork, op, err)
	}
	return errors.New(errors.KindUnknown, op, err)
}

var (
	authMarkers = []string{
		"authentication failed",
		"permission denied",
		"returned error: 401",
		"returned error: 403",
		"could not read username",
		"could not read password",
		"invalid username or password",
		"terminal prompts disabled",
		"access denied",
	}
	networkMarkers = []string{
		"could not resolve host",
		"could not resolve hostname",
		"connection refused",
		"connection timed out",
		"operation timed out",
		"network is unreachable",
		"failed to connect",
		"unable to access",
		"the remote end hung up",
		"early eof",
		"could not read from remote repository",
		"ssl_connect",
	}
	notConfiguredMarkers = []string{
		"no such remote",
		"does not appear to be a git repository",
		"no upstream",
		"no tracking information",
		"couldn't find remote ref",
		"no configured push destination",
		"src refspec",
	}
	rejectedMarkers = []string{
		"[rejected]",
		"non-fast-forward",
		"fetch first",
	}
)

// classify maps git output to an error Kind. Auth markers are checked
// before network markers since git reports credential rejection through
// the same "unable to access" prefix.
func classify(output string) errors.Kind {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "not a git repository"):
		return errors.KindNotAVcsRepo
	case containsAny(lower, authMarkers):
		return errors.KindAuth
	case containsAny(lower, rejectedMarkers):
		return errors.KindRejected
	case containsAny(lower, notConfiguredMarkers):
		return errors.KindNotConfigured
	case containsAny(lower, networkMarkers):
		return errors.KindNetwork
	case strings.Contains(lower, "conflict"):
		return errors.KindConflict
	}
	return errors.KindUnknown
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func (repo *Repo) IsRepository(ctx context.Context) bool {
	out, err := repo.run(ctx, "rev-parse", "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// GitDir returns the absolute path of the repository's git directory.
func (repo *Repo) GitDir(ctx context.Context) (string, error) {
	out, err := repo.run(ctx, "rev-parse", "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// HasHead reports whether the current branch has at least one commit.
func (repo *Repo) HasHead(ctx context.Context) (bool, error) {
	code, err := repo.runStatus(ctx, "rev-parse", "rev-parse", "-q", "--verify", "HEAD^{commit}")
	return code == 0, err
}

// ResolveBranch returns the configured branch or the checked-out one.
func (repo *Repo) ResolveBranch(ctx context.Context) (string, error) {
	if repo.Branch != "" {
		return repo.Branch, nil
	}
	return repo.CurrentBranch(ctx)
}

// RemoteRef returns "<remote>/<branch>" for the synced branch.
func (repo *Repo) RemoteRef(ctx context.Context) (string, error) {
	branch, err := repo.ResolveBranch(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", repo.Remote, branch), nil
}

// RemoteRefExists reports whether the remote-tracking ref has been fetched.
func (repo *Repo) RemoteRefExists(ctx context.Context) (bool, error) {
	ref, err := repo.RemoteRef(ctx)
	if err != nil {
		return false, err
	}
	code, err := repo.runStatus(ctx, "rev-parse", "rev-parse", "-q", "--verify", "refs/remotes/"+ref)
	return code == 0, err
}
