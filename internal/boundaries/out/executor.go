// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (nginx, filesystem, sqlite, ACME, etc.).
package out

import "context"

// ExecResult holds the result of running a process.
type ExecResult struct {
	// Command is the command line that produced the result.
	Command  string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Output returns stdout followed by stderr.
func (r *ExecResult) Output() string {
	if r == nil {
		return ""
	}
	return string(r.Stdout) + string(r.Stderr)
}

// CommandExecutor runs external processes.
type CommandExecutor interface {
	// Run executes name with args. A non-zero exit code is reported in the
	// result, not as an error; errors are reserved for processes that could
	// not be started or were cancelled.
	Run(ctx context.Context, name string, args ...string) (*ExecResult, error)
}
