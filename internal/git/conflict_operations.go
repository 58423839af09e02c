package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UnmergedPaths lists paths with unresolved conflicts in the index.
func (repo *Repo) UnmergedPaths(ctx context.Context) ([]string, error) {
	out, err := repo.run(ctx, "diff", "diff", "--name-only", "--diff-filter=U", "-z")
	if err != nil {
		return nil, err
	}
	var paths []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(out, "\x00") {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	return paths, nil
}

// MergeHead returns the commit being merged, or "" outside a merge.
func (repo *Repo) MergeHead(ctx context.Context) (string, error) {
	out, err := repo.run(ctx, "rev-parse", "rev-parse", "-q", "--verify", "--revs-only", "MERGE_HEAD")
	if err != nil {
		// rev-parse -q --verify exits 1 without output when the ref is absent
		if exitCode(err) == 1 && strings.TrimSpace(out) == "" {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (repo *Repo) MergeInProgress(ctx context.Context) (bool, error) {
	head, err := repo.MergeHead(ctx)
	return head != "", err
}

// MergeStartedAt returns when the current merge began, from the MERGE_HEAD
// file. Outside a merge, or when it cannot be read, ok is false.
func (repo *Repo) MergeStartedAt(ctx context.Context) (time.Time, bool) {
	gitDir, err := repo.GitDir(ctx)
	if err != nil {
		return time.Time{}, false
	}
	info, err := os.Stat(filepath.Join(gitDir, "MERGE_HEAD"))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func (repo *Repo) MergeAbort(ctx context.Context) error {
	_, err := repo.run(ctx, "merge", "merge", "--abort")
	return err
}
