package interfaces

import (
	"errors"
	"fmt"
	"strings"
)

// Common error values returned by pipeline stages.
var (
	// ErrRuntimeMissing indicates the language runtime was not found on PATH.
	// The installer remediates this once per run by installing the fallback
	// runtime packages; if the runtime is still missing afterwards the run
	// fails.
	ErrRuntimeMissing = errors.New("language runtime not found on PATH")

	// ErrSiteNotWritten indicates a proxy operation was attempted before the
	// site descriptor existed on disk.
	ErrSiteNotWritten = errors.New("site descriptor has not been written")
)

// ExternalToolError reports a non-zero exit from an external command. The
// child's own output, already streamed to the terminal, is the diagnostic
// detail; the orchestrator adds none.
type ExternalToolError struct {
	// Tool is the program that failed.
	Tool string

	// Args are the arguments it was invoked with.
	Args []string

	// ExitCode is the child's exit status. The whole run exits with this
	// code when the error reaches main.
	ExitCode int

	// Err is the underlying exec error.
	Err error
}

// Error returns a description of the failed command.
func (e *ExternalToolError) Error() string {
	if len(e.Args) == 0 {
		return fmt.Sprintf("%s failed (exit %d)", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s %s failed (exit %d)", e.Tool, strings.Join(e.Args, " "), e.ExitCode)
}

// Unwrap returns the underlying exec error.
func (e *ExternalToolError) Unwrap() error {
	return e.Err
}

// ValidationError reports that a generated artifact was rejected by its
// consumer's validator before activation. The previously active configuration
// is left untouched when this error is returned.
type ValidationError struct {
	// Artifact is the path of the rejected descriptor.
	Artifact string

	// Err is the validator failure, typically an *ExternalToolError.
	Err error
}

// Error returns a description of the rejected artifact.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s rejected by validation: %v", e.Artifact, e.Err)
}

// Unwrap returns the validator failure.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ExitCode maps a pipeline error to the process exit code: the first failing
// external command's own exit status when one is in the chain, 1 for any
// other error, 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var toolErr *ExternalToolError
	if errors.As(err, &toolErr) {
		return toolErr.ExitCode
	}
	return 1
}
