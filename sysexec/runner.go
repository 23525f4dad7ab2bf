// Package sysexec executes external tools on behalf of the pipeline. It is
// the only place the orchestrator shells out; everything above it talks to
// the interfaces.CommandRunner contract.
package sysexec

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"

	"github.com/siteup/siteup/interfaces"
)

// Runner executes commands synchronously, inheriting the operator's
// terminal. Tool output streams through unmodified so failures read exactly
// as they would when running the tool by hand.
type Runner struct {
	log *slog.Logger
}

var _ interfaces.CommandRunner = (*Runner)(nil)

// NewRunner creates a runner that logs command invocations at debug level.
func NewRunner(log *slog.Logger) *Runner {
	return &Runner{log: log}
}

// Run executes the named program with stdio inherited from the process.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	r.log.Debug("executing command", "cmd", name, "args", args)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return wrapExecError(name, args, err)
	}
	return nil
}

// Output executes the named program and captures its standard output.
// Stderr still streams to the terminal.
func (r *Runner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.log.Debug("executing command", "cmd", name, "args", args)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, wrapExecError(name, args, err)
	}
	return out, nil
}

// LookPath resolves the named executable against PATH.
func (r *Runner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// wrapExecError converts exec failures into ExternalToolError, preserving
// the child's exit status. A command that could not start at all maps to
// exit code 127, matching shell convention.
func wrapExecError(name string, args []string, err error) error {
	exitCode := 127
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &interfaces.ExternalToolError{
		Tool:     name,
		Args:     args,
		ExitCode: exitCode,
		Err:      err,
	}
}
