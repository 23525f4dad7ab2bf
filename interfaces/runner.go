package interfaces

import "context"

// CommandRunner abstracts execution of external tools (package manager,
// reverse proxy binary, service manager, CA client). The pipeline performs
// every privileged host mutation through this interface, which keeps stage
// ordering and failure handling testable without a root shell.
//
// Implementations run commands synchronously and impose no timeouts of their
// own. Cancellation of the passed context kills the child process, but the
// pipeline does not cancel mid-step.
type CommandRunner interface {
	// Run executes the named program and streams its stdout and stderr to
	// the operator's terminal unchanged. The returned error wraps the
	// child's exit status when it exited non-zero.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes the named program and returns its standard output.
	// Stderr passes through to the terminal.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath resolves the named executable against PATH.
	LookPath(name string) (string, error)
}
