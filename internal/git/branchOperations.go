package git

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/corpeningc/catsync/internal/errors"
)

type Remote struct {
	Name string
	URL  string
}

// CurrentBranch returns the checked-out branch, also on an unborn branch.
func (repo *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := repo.run(ctx, "symbolic-ref", "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", errors.Wrap(err, "failed to get current branch")
	}
	return strings.TrimSpace(out), nil
}

// Fetch updates remote-tracking refs. It never touches the working tree.
func (repo *Repo) Fetch(ctx context.Context, remote string) error {
	if remote == "" {
		remote = repo.Remote
	}
	_, err := repo.run(ctx, "fetch", "fetch", "--prune", remote)
	return err
}

// Pull fetches and merges the synced branch.
func (repo *Repo) Pull(ctx context.Context) error {
	branch, err := repo.ResolveBranch(ctx)
	if err != nil {
		return err
	}
	_, err = repo.run(ctx, "pull", "pull", "--no-rebase", "--no-edit", repo.Remote, branch)
	if err != nil {
		return repo.conflictOr(ctx, "pull", err)
	}
	return nil
}

// Push publishes the synced branch and sets its upstream.
func (repo *Repo) Push(ctx context.Context) error {
	branch, err := repo.ResolveBranch(ctx)
	if err != nil {
		return err
	}
	_, err = repo.run(ctx, "push", "push", "-u", repo.Remote, "HEAD:refs/heads/"+branch)
	return err
}

// Merge merges ref into the current branch. If the merge stops on
// conflicting paths the error has Kind conflict and the repository is left
// mid-merge.
func (repo *Repo) Merge(ctx context.Context, ref string) error {
	_, err := repo.run(ctx, "merge", "merge", "--no-edit", ref)
	if err != nil {
		return repo.conflictOr(ctx, "merge", err)
	}
	return nil
}

// conflictOr reclassifies err as a conflict when unmerged paths exist.
func (repo *Repo) conflictOr(ctx context.Context, op string, err error) error {
	paths, uerr := repo.UnmergedPaths(ctx)
	if uerr == nil && len(paths) > 0 {
		var gitErr *errors.Error
		output := ""
		if errors.As(err, &gitErr) {
			output = gitErr.Output
		}
		return errors.NewWithOutput(errors.KindConflict, op,
			fmt.Errorf("conflicts in %s", strings.Join(paths, ", ")), output)
	}
	return err
}

// MergeBase returns the best common ancestor of a and b, or "" if none.
func (repo *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	stdout, stderr, err := repo.exec.Run(ctx, repo.WorkDir, "merge-base", a, b)
	if err != nil {
		if exitCode(err) == 1 {
			return "", nil
		}
		return "", formatCommandError("merge-base", err, stdout, stderr)
	}
	return strings.TrimSpace(stdout), nil
}

// AheadBehind counts commits on local not on remote, and the reverse.
func (repo *Repo) AheadBehind(ctx context.Context, local, remote string) (int, int, error) {
	out, err := repo.run(ctx, "rev-list", "rev-list", "--left-right", "--count", local+"..."+remote)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}
	ahead, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, err
	}
	behind, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return ahead, behind, nil
}

// ListRemoteBranches returns branch names on the configured remote.
func (repo *Repo) ListRemoteBranches(ctx context.Context) ([]string, error) {
	out, err := repo.run(ctx, "branch", "branch", "-r", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}

	prefix := repo.Remote + "/"
	var branches []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, prefix) || line == prefix+"HEAD" {
			continue
		}
		branches = append(branches, strings.TrimPrefix(line, prefix))
	}
	return branches, nil
}

func (repo *Repo) GetRemotes(ctx context.Context) ([]Remote, error) {
	out, err := repo.run(ctx, "remote", "remote", "-v")
	if err != nil {
		return nil, err
	}

	var remotes []Remote
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 3 && fields[2] == "(fetch)" {
			remotes = append(remotes, Remote{Name: fields[0], URL: fields[1]})
		}
	}
	return remotes, nil
}

func (repo *Repo) RemoteURL(ctx context.Context, name string) (string, error) {
	out, err := repo.run(ctx, "remote", "remote", "get-url", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SetRemoteURL points name at url, adding the remote if it is missing.
func (repo *Repo) SetRemoteURL(ctx context.Context, name, url string) error {
	remotes, err := repo.GetRemotes(ctx)
	if err != nil {
		return err
	}
	for _, r := range remotes {
		if r.Name == name {
			_, err := repo.run(ctx, "remote", "remote", "set-url", name, url)
			return err
		}
	}
	_, err = repo.run(ctx, "remote", "remote", "add", name, url)
	return err
}
