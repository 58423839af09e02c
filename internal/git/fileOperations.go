package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/corpeningc/catsync/internal/errors"
)

type FileStatus struct {
	Path     string
	OrigPath string // set for renames and copies
	Index    byte   // X column of porcelain v1
	WorkTree byte   // Y column of porcelain v1
}

// IsUnmerged reports whether the path has unresolved merge conflicts.
func (f FileStatus) IsUnmerged() bool {
	switch string([]byte{f.Index, f.WorkTree}) {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}

func (f FileStatus) IsUntracked() bool {
	return f.Index == '?' && f.WorkTree == '?'
}

func (f FileStatus) IsAdded() bool {
	return f.IsUntracked() || (f.Index == 'A' && f.WorkTree != 'D')
}

func (f FileStatus) IsDeleted() bool {
	return !f.IsUnmerged() && (f.Index == 'D' || f.WorkTree == 'D')
}

// Status returns the working tree status from git status --porcelain=v1 -z.
func (repo *Repo) Status(ctx context.Context) ([]FileStatus, error) {
	out, err := repo.run(ctx, "status", "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	return parsePorcelainZ(out), nil
}

func parsePorcelainZ(out string) []FileStatus {
	var files []FileStatus
	entries := strings.Split(out, "\x00")
	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		if len(entry) < 4 {
			continue
		}
		fs := FileStatus{
			Index:    entry[0],
			WorkTree: entry[1],
			Path:     entry[3:],
		}
		// Renames and copies carry the source path as the next entry
		if (fs.Index == 'R' || fs.Index == 'C') && i+1 < len(entries) {
			fs.OrigPath = entries[i+1]
			i++
		}
		files = append(files, fs)
	}
	return files
}

// IsClean reports whether there is nothing to commit, untracked files included.
func (repo *Repo) IsClean(ctx context.Context) (bool, error) {
	files, err := repo.Status(ctx)
	if err != nil {
		return false, err
	}
	return len(files) == 0, nil
}

// Add stages paths, including deletions.
func (repo *Repo) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "-A", "--"}, paths...)
	_, err := repo.run(ctx, "add", args...)
	return err
}

func (repo *Repo) AddAll(ctx context.Context) error {
	_, err := repo.run(ctx, "add", "add", "-A")
	return err
}

// Remove deletes paths from the index and the working tree.
func (repo *Repo) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"rm", "-q", "-f", "--ignore-unmatch", "--"}, paths...)
	_, err := repo.run(ctx, "rm", args...)
	return err
}

// HasStagedChanges reports whether the index differs from HEAD, limited to
// paths when given.
func (repo *Repo) HasStagedChanges(ctx context.Context, paths ...string) (bool, error) {
	args := []string{"diff", "--cached", "--quiet"}
	if len(paths) > 0 {
		args = append(append(args, "--"), paths...)
	}
	code, err := repo.runStatus(ctx, "diff", args...)
	if err != nil {
		return false, err
	}
	return code == 1, nil
}

// RestorePath discards index and working tree changes to path. A path that
// does not exist at HEAD is unstaged and deleted.
func (repo *Repo) RestorePath(ctx context.Context, path string) error {
	inHead, err := repo.Exists(ctx, "HEAD", path)
	if err != nil {
		return err
	}
	if inHead {
		_, err := repo.run(ctx, "restore", "restore", "--source=HEAD", "--staged", "--worktree", "--", path)
		return err
	}

	if _, err := repo.run(ctx, "rm", "rm", "-q", "--cached", "--ignore-unmatch", "--", path); err != nil {
		return err
	}
	full := filepath.Join(repo.WorkDir, filepath.FromSlash(path))
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errors.IO("restore", err)
	}
	return nil
}
