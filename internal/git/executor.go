package git

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
)

// CommandExecutor runs git with the given arguments in dir.
type CommandExecutor interface {
	Run(ctx context.Context, dir string, args ...string) (stdout, stderr string, err error)
}

// ExecExecutor is the default CommandExecutor that shells out to the git binary.
type ExecExecutor struct {
	Binary string
}

func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{Binary: "git"}
}

func (e *ExecExecutor) Run(ctx context.Context, dir string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Dir = dir
	// Never block on a credential prompt; failed auth must surface as an error.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// exitCode extracts the process exit code from err, or -1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder interface{ ExitCode() int }
	if stderrors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}
