// Package interfaces defines core types and contracts for the host
// bootstrap pipeline, separating the vocabulary the stages exchange from
// the implementations behind it.
//
// # Domain Types
//
// Domain: A validated fully qualified domain name. Constructed through
// NewDomain, which enforces length and label syntax; the zero value is not
// valid. The domain names the proxy site, the certificate request, and the
// DNS preflight target.
//
// # Host Probing Types
//
// EnvStatus: Three-state result of probing the isolated application
// environment. Present means usable as-is, Absent means it must be
// created, Corrupt means remnants exist that must be removed and rebuilt.
// The distinction matters because a half-created environment would
// otherwise pass an existence check and fail much later, inside the
// application.
//
// HostEnvironment: What the language runtime probe found on PATH,
// including the resolved binary path and reported version.
//
// HostContext: The ambient process context (working directory, invoking
// user) captured once at startup. Stages receive the captured value;
// nothing re-reads the process environment later, so artifacts rendered
// at different times agree on where the application lives.
//
// # Command Execution
//
// CommandRunner: The single seam through which external tools run (the
// package manager, the runtime's environment tooling, the proxy binary,
// the service manager, the CA client). Implementations stream child
// output to the operator's terminal; tests substitute a mock to assert
// command order without touching the host.
//
// # Error Types
//
// ExternalToolError: A non-zero exit from an external command, carrying
// the child's exit status to the top of the process. The run exits with
// that same status.
//
// ValidationError: A generated artifact rejected by its consumer's
// validator before activation, wrapping the validator's failure.
//
// ExitCode maps any error chain to the process exit code; sentinel values
// ErrRuntimeMissing and ErrSiteNotWritten mark the two pipeline states
// callers branch on.
package interfaces
