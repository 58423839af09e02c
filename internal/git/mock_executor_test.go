package git

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// exitError mimics *exec.ExitError for the fake executor.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *exitError) ExitCode() int { return e.code }

type fakeResponse struct {
	stdout string
	stderr string
	code   int
}

// fakeExecutor answers git invocations keyed by their joined arguments.
// Unknown invocations succeed with empty output.
type fakeExecutor struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{responses: make(map[string]fakeResponse)}
}

func (f *fakeExecutor) on(args string, resp fakeResponse) {
	f.responses[args] = resp
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args ...string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	resp, ok := f.responses[key]
	if !ok {
		return "", "", nil
	}
	if resp.code != 0 {
		return resp.stdout, resp.stderr, &exitError{code: resp.code}
	}
	return resp.stdout, resp.stderr, nil
}

func (f *fakeExecutor) called(args string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == args {
			return true
		}
	}
	return false
}
