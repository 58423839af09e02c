package engine

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/corpeningc/catsync/internal/changes"
	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/errors"
	"github.com/corpeningc/catsync/internal/logging"
)

// RemoteFileChange is one file changed on the remote branch since the
// local branch diverged from it.
type RemoteFileChange struct {
	Path      string             `json:"path" yaml:"path"`
	Additions int                `json:"additions" yaml:"additions"`
	Deletions int                `json:"deletions" yaml:"deletions"`
	Binary    bool               `json:"binary,omitempty" yaml:"binary,omitempty"`
	Changes   *changes.ChangeSet `json:"changes,omitempty" yaml:"changes,omitempty"`
}

type RemoteChanges struct {
	HasRemoteChanges bool               `json:"hasRemoteChanges" yaml:"hasRemoteChanges"`
	AheadBy          int                `json:"aheadBy" yaml:"aheadBy"`
	BehindBy         int                `json:"behindBy" yaml:"behindBy"`
	Files            []RemoteFileChange `json:"files" yaml:"files"`
}

// CheckRemoteChanges fetches and compares the local branch with the remote
// branch without integrating anything.
func (e *Engine) CheckRemoteChanges(ctx context.Context) (*RemoteChanges, error) {
	return withRetry(ctx, e, "check remote", e.checkRemote)
}

func (e *Engine) checkRemote(ctx context.Context) (*RemoteChanges, error) {
	base, remoteRef, err := e.divergence(ctx)
	if err != nil || remoteRef == "" {
		return &RemoteChanges{}, err
	}

	rc := &RemoteChanges{}
	head, err := e.headRev(ctx)
	if err != nil {
		return nil, err
	}
	if head != "" {
		if rc.AheadBy, rc.BehindBy, err = e.repo.AheadBehind(ctx, head, remoteRef); err != nil {
			return nil, err
		}
	}
	rc.HasRemoteChanges = rc.BehindBy > 0 || head == ""
	if !rc.HasRemoteChanges {
		return rc, nil
	}

	from := base
	if from == "" {
		// unrelated histories: compare against the empty tree
		from = emptyTree
	}
	stats, err := e.repo.DiffNumstat(ctx, from, remoteRef)
	if err != nil {
		return nil, err
	}
	for _, s := range stats {
		fc := RemoteFileChange{Path: s.Path, Additions: s.Additions, Deletions: s.Deletions, Binary: s.Binary}
		if def, ok := e.registry.Lookup(s.Path); ok {
			oldFile, err := e.snapshot(ctx, base, s.Path)
			if err != nil {
				return nil, err
			}
			newFile, err := e.snapshot(ctx, remoteRef, s.Path)
			if err != nil {
				return nil, err
			}
			fc.Changes = changes.Diff(def, oldFile, newFile)
		}
		rc.Files = append(rc.Files, fc)
	}
	return rc, nil
}

// emptyTree is git's well-known empty tree object.
const emptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// divergence fetches and returns the merge base of HEAD and the remote
// branch. remoteRef is empty when the remote branch does not exist.
func (e *Engine) divergence(ctx context.Context) (base, remoteRef string, err error) {
	if err := e.repo.Fetch(ctx, ""); err != nil {
		return "", "", err
	}
	exists, err := e.repo.RemoteRefExists(ctx)
	if err != nil || !exists {
		return "", "", err
	}
	if remoteRef, err = e.repo.RemoteRef(ctx); err != nil {
		return "", "", err
	}
	head, err := e.headRev(ctx)
	if err != nil || head == "" {
		return "", remoteRef, err
	}
	base, err = e.repo.MergeBase(ctx, head, remoteRef)
	return base, remoteRef, err
}

// CheckPotentialConflicts previews the record conflicts a publish would hit
// now, comparing the working copy with the remote branch.
func (e *Engine) CheckPotentialConflicts(ctx context.Context) ([]conflict.FileConflict, error) {
	return withRetry(ctx, e, "check conflicts", e.potentialConflicts)
}

func (e *Engine) potentialConflicts(ctx context.Context) ([]conflict.FileConflict, error) {
	base, remoteRef, err := e.divergence(ctx)
	if err != nil || remoteRef == "" {
		return nil, err
	}

	var out []conflict.FileConflict
	for _, def := range e.registry.Definitions() {
		var sides conflict.Sides
		if sides.Base, err = e.version(ctx, base, def.Path); err != nil {
			return nil, err
		}
		if sides.Local, err = e.workingVersion(def.Path); err != nil {
			return nil, err
		}
		if sides.Remote, err = e.version(ctx, remoteRef, def.Path); err != nil {
			return nil, err
		}
		fc := conflict.DetectFile(def, sides)
		if fc.Unparsed || len(fc.Records) > 0 {
			out = append(out, fc)
		}
	}
	return out, nil
}

// RemoteMatch compares the configured remote URL with an expected one.
type RemoteMatch struct {
	Matches    bool   `json:"matches" yaml:"matches"`
	CurrentURL string `json:"currentUrl" yaml:"currentUrl"`
}

// ValidateRemoteMatches reports whether the sync remote points at expected.
// A missing remote does not match.
func (e *Engine) ValidateRemoteMatches(ctx context.Context, expected string) (*RemoteMatch, error) {
	current, err := e.repo.RemoteURL(ctx, e.repo.Remote)
	if err != nil {
		if errors.IsKind(err, errors.KindNotConfigured) {
			return &RemoteMatch{}, nil
		}
		return nil, err
	}
	return &RemoteMatch{
		Matches:    NormalizeRemoteURL(current) == NormalizeRemoteURL(expected),
		CurrentURL: current,
	}, nil
}

// SetRemoteURL points the sync remote at url, adding it if missing.
func (e *Engine) SetRemoteURL(ctx context.Context, rawURL string) error {
	release, err := e.acquire(ctx, "set remote")
	if err != nil {
		return err
	}
	defer release()
	return e.repo.SetRemoteURL(ctx, e.repo.Remote, rawURL)
}

// ResetToRemote discards all local divergence, commits included, and
// matches the remote branch exactly.
func (e *Engine) ResetToRemote(ctx context.Context) error {
	release, err := e.acquire(ctx, "reset")
	if err != nil {
		return err
	}
	defer release()

	if err := retryErr(ctx, e, "reset fetch", func(ctx context.Context) error {
		return e.repo.Fetch(ctx, "")
	}); err != nil {
		return err
	}
	exists, err := e.repo.RemoteRefExists(ctx)
	if err != nil {
		return err
	}
	remoteRef, err := e.repo.RemoteRef(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return errors.New(errors.KindNotConfigured, "reset", errors.Errorf("remote branch %s does not exist", remoteRef))
	}
	if err := e.repo.FullClean(ctx, remoteRef); err != nil {
		return err
	}
	e.logger.Warn("reset to remote", logging.Op("reset"), slog.String("ref", remoteRef))
	return nil
}

// NormalizeRemoteURL reduces a remote URL to host/path so that scheme,
// credentials, a trailing ".git" or slash, and host case do not matter.
// scp-like "git@host:owner/repo" normalizes like "https://host/owner/repo".
func NormalizeRemoteURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	var host, p string
	switch {
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return strings.ToLower(s)
		}
		host, p = u.Hostname(), u.Path
		if u.Scheme == "file" {
			host = ""
		}
	case isSCPLike(s):
		at := strings.LastIndex(s[:strings.Index(s, ":")], "@")
		host, p, _ = strings.Cut(s[at+1:], ":")
	default:
		// local path
		p = s
	}

	p = strings.TrimSuffix(strings.TrimRight(p, "/"), ".git")
	p = strings.TrimRight(p, "/")
	if host == "" {
		return path.Clean(p)
	}
	return strings.ToLower(host) + "/" + strings.TrimLeft(p, "/")
}

// isSCPLike matches user@host:path and host:path, but not a Windows drive
// letter or a path with a slash before the colon.
func isSCPLike(s string) bool {
	colon := strings.Index(s, ":")
	if colon <= 1 {
		return false
	}
	return !strings.Contains(s[:colon], "/")
}
