// Package main (cmd/siteup) implements the host bootstrap command.
//
// siteup turns a fresh Debian-style host into a running, TLS-terminated
// deployment of the web application in the current directory. One run walks
// a fixed sequence: probe the language runtime (installing a fallback when
// absent), install the system packages, create or repair the isolated
// environment, install the application libraries, write the service unit,
// activate the reverse proxy site, and obtain the certificate. The sequence
// is fail-fast; when an external tool fails, the run stops and the process
// exits with that tool's own exit code.
//
// The binary supports five commands:
//
//	run       - Execute the full bootstrap sequence against the host. This
//	            is the default command. On success the remaining operator
//	            steps (unit registration and start) are printed; siteup
//	            never talks to the service manager about its own unit.
//	            Every run is appended to a journal under the state
//	            directory; journal failures never affect the run itself.
//
//	render    - Print the service unit and proxy site exactly as run would
//	            write them, without touching the host.
//
//	status    - Report what is already in place: runtime, environment,
//	            unit, site, upstream reachability, certificate, and the
//	            outcome of the last recorded run.
//
//	history   - List past runs from the journal, newest first.
//
//	preflight - Check the published domain from the host's point of view:
//	            does it resolve, and are ports 80 and 443 reachable. The
//	            run command performs no such checks on its own.
//
// Configuration comes from siteup.yaml in the application directory, with
// flags overriding individual values. Only the domain is required; every
// other value has a default suited to a Python web application served by
// uvicorn behind nginx.
package main
