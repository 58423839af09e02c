package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/corpeningc/catsync/internal/errors"
)

// Index stages of an unmerged path.
const (
	StageBase   = 1
	StageOurs   = 2
	StageTheirs = 3
)

type FileDiffStat struct {
	Path      string
	Additions int
	Deletions int
	Binary    bool
}

// Exists reports whether rev contains path. rev "" with a stage prefix such
// as ":2" addresses the index.
func (repo *Repo) Exists(ctx context.Context, rev, path string) (bool, error) {
	stdout, stderr, err := repo.exec.Run(ctx, repo.WorkDir, "rev-parse", "-q", "--verify", rev+":"+path)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, contextFailure("rev-parse", ctx.Err())
	}
	if exitCode(err) > 0 {
		if kind := classify(stderr); kind == errors.KindNotAVcsRepo {
			return false, formatCommandError("rev-parse", err, stdout, stderr)
		}
		return false, nil
	}
	return false, formatCommandError("rev-parse", err, stdout, stderr)
}

// ShowFile returns the content of path at rev. A missing path yields
// errors.ErrPathNotFound.
func (repo *Repo) ShowFile(ctx context.Context, rev, path string) ([]byte, error) {
	ok, err := repo.Exists(ctx, rev, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrPathNotFound, "%s:%s", rev, path)
	}
	out, err := repo.run(ctx, "cat-file", "cat-file", "blob", rev+":"+path)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// ShowStage returns the content of an unmerged path at the given index stage.
func (repo *Repo) ShowStage(ctx context.Context, stage int, path string) ([]byte, error) {
	return repo.ShowFile(ctx, fmt.Sprintf(":%d", stage), path)
}

// DiffNumstat returns per-file line counts between two revisions.
func (repo *Repo) DiffNumstat(ctx context.Context, from, to string) ([]FileDiffStat, error) {
	out, err := repo.run(ctx, "diff", "diff", "--numstat", "--no-renames", from, to, "--")
	if err != nil {
		return nil, err
	}
	return parseNumstat(out), nil
}

func parseNumstat(out string) []FileDiffStat {
	var stats []FileDiffStat
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		stat := FileDiffStat{Path: parts[2]}
		if parts[0] == "-" || parts[1] == "-" {
			stat.Binary = true
		} else {
			stat.Additions, _ = strconv.Atoi(parts[0])
			stat.Deletions, _ = strconv.Atoi(parts[1])
		}
		stats = append(stats, stat)
	}
	return stats
}
