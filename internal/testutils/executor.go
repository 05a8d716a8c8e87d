package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/bnema/proxied/internal/boundaries/out"
)

// FakeExecutor records commands and answers them from canned results
// keyed by the full command line.
type FakeExecutor struct {
	mu      sync.Mutex
	calls   []string
	results map[string]*out.ExecResult
	errs    map[string]error
}

// NewFakeExecutor creates an executor where every command succeeds.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		results: make(map[string]*out.ExecResult),
		errs:    make(map[string]error),
	}
}

// On sets the result returned for a command line such as "nginx -t".
func (f *FakeExecutor) On(cmdline string, exitCode int, stdout, stderr string) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[cmdline] = &out.ExecResult{
		Command:  cmdline,
		ExitCode: exitCode,
		Stdout:   []byte(stdout),
		Stderr:   []byte(stderr),
	}
	return f
}

// OnError makes a command line fail to start.
func (f *FakeExecutor) OnError(cmdline string, err error) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[cmdline] = err
	return f
}

func (f *FakeExecutor) Run(_ context.Context, name string, args ...string) (*out.ExecResult, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmdline)
	if err, ok := f.errs[cmdline]; ok {
		return &out.ExecResult{Command: cmdline, ExitCode: 127}, err
	}
	if res, ok := f.results[cmdline]; ok {
		cp := *res
		return &cp, nil
	}
	return &out.ExecResult{Command: cmdline}, nil
}

// Calls returns every command line run so far.
func (f *FakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how often cmdline was run.
func (f *FakeExecutor) Count(cmdline string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == cmdline {
			n++
		}
	}
	return n
}
