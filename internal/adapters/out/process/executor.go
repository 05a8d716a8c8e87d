// Package process runs external commands on the local host.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/proxied/internal/boundaries/out"
)

// ExitNotFound is reported when the binary cannot be located.
const ExitNotFound = 127

// Executor implements out.CommandExecutor with os/exec.
type Executor struct {
	// Env, when non-nil, replaces the inherited environment.
	Env []string
}

// NewExecutor creates an executor inheriting the process environment.
func NewExecutor() *Executor {
	return &Executor{}
}

// Run executes name with args and captures both output streams.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (*out.ExecResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if e.Env != nil {
		cmd.Env = e.Env
	}
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &out.ExecResult{
		Command: strings.Join(append([]string{name}, args...), " "),
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
	}
	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("run %s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	result.ExitCode = 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		result.ExitCode = ExitNotFound
	}
	return result, fmt.Errorf("run %s: %w", name, err)
}
