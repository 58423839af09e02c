package git

import (
	"context"
	"fmt"
	"strings"
)

type ResetMode string

const (
	ResetSoft  ResetMode = "soft"
	ResetMixed ResetMode = "mixed"
	ResetHard  ResetMode = "hard"
)

type StashEntry struct {
	Ref     string // stash@{n}
	Message string
}

// Commit records the index. Given paths, only those paths are committed and
// anything else staged stays staged; during a merge paths are ignored since
// a merge commit takes the whole index. With nothing to commit and no merge
// in progress it is a no-op and returns false. During a merge an empty
// message reuses the prepared merge message.
func (repo *Repo) Commit(ctx context.Context, message string, paths ...string) (bool, error) {
	inMerge, err := repo.MergeInProgress(ctx)
	if err != nil {
		return false, err
	}
	if inMerge {
		paths = nil
	} else {
		staged, err := repo.HasStagedChanges(ctx, paths...)
		if err != nil {
			return false, err
		}
		if !staged {
			return false, nil
		}
	}

	args := []string{"commit", "--no-verify"}
	if message == "" && inMerge {
		args = append(args, "--no-edit")
	} else {
		args = append(args, "-m", message)
	}
	if len(paths) > 0 {
		args = append(args, "--only", "--")
		args = append(args, paths...)
	}
	if _, err := repo.run(ctx, "commit", args...); err != nil {
		return false, err
	}
	return true, nil
}

func (repo *Repo) Reset(ctx context.Context, mode ResetMode, ref string) error {
	args := []string{"reset", "--" + string(mode)}
	if ref != "" {
		args = append(args, ref)
	}
	_, err := repo.run(ctx, "reset", args...)
	return err
}

// Clean removes untracked files, and untracked directories when dirs is set.
func (repo *Repo) Clean(ctx context.Context, dirs bool) error {
	args := []string{"clean", "-f"}
	if dirs {
		args = append(args, "-d")
	}
	_, err := repo.run(ctx, "clean", args...)
	return err
}

// StashPush stashes tracked and untracked changes. It returns false when
// there was nothing to stash.
func (repo *Repo) StashPush(ctx context.Context, message string) (bool, error) {
	out, err := repo.run(ctx, "stash", "stash", "push", "--include-untracked", "-m", message)
	if err != nil {
		return false, err
	}
	return !strings.Contains(out, "No local changes to save"), nil
}

// StashPop applies and drops the top stash. A conflicting pop keeps the
// stash entry and fails with Kind conflict.
func (repo *Repo) StashPop(ctx context.Context) error {
	_, err := repo.run(ctx, "stash", "stash", "pop")
	if err != nil {
		return repo.conflictOr(ctx, "stash pop", err)
	}
	return nil
}

func (repo *Repo) StashDrop(ctx context.Context, ref string) error {
	args := []string{"stash", "drop", "-q"}
	if ref != "" {
		args = append(args, ref)
	}
	_, err := repo.run(ctx, "stash", args...)
	return err
}

func (repo *Repo) StashList(ctx context.Context) ([]StashEntry, error) {
	out, err := repo.run(ctx, "stash", "stash", "list", "--format=%gd%x00%gs")
	if err != nil {
		return nil, err
	}

	var entries []StashEntry
	for _, line := range strings.Split(out, "\n") {
		ref, msg, ok := strings.Cut(line, "\x00")
		if !ok {
			continue
		}
		entries = append(entries, StashEntry{Ref: ref, Message: msg})
	}
	return entries, nil
}

// FullClean discards all local changes and untracked files.
func (repo *Repo) FullClean(ctx context.Context, ref string) error {
	if err := repo.Reset(ctx, ResetHard, ref); err != nil {
		return fmt.Errorf("reset --hard: %w", err)
	}
	if err := repo.Clean(ctx, true); err != nil {
		return fmt.Errorf("clean -fd: %w", err)
	}
	return nil
}
