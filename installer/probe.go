package installer

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/siteup/siteup/interfaces"
)

var runtimeVersionRe = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// DetectRuntime probes PATH for the interpreter and asks it for its
// version. The result is computed fresh on every run and never persisted.
func DetectRuntime(ctx context.Context, runner interfaces.CommandRunner, interpreter string) interfaces.HostEnvironment {
	path, err := runner.LookPath(interpreter)
	if err != nil || path == "" {
		return interfaces.HostEnvironment{}
	}

	env := interfaces.HostEnvironment{RuntimePresent: true, RuntimePath: path}

	out, err := runner.Output(ctx, interpreter, "--version")
	if err == nil {
		env.RuntimeVersion = parseRuntimeVersion(string(out))
	}
	return env
}

func parseRuntimeVersion(output string) string {
	line := output
	if idx := strings.Index(line, "\n"); idx >= 0 {
		line = line[:idx]
	}
	if m := runtimeVersionRe.FindStringSubmatch(line); len(m) > 1 {
		return m[1]
	}
	return strings.TrimSpace(line)
}

// ProbeEnv classifies the isolated environment directory. A directory whose
// interpreter is missing, not executable, or a dangling link counts as
// corrupt and gets recreated rather than trusted.
func ProbeEnv(envDir string) interfaces.EnvStatus {
	info, err := os.Stat(envDir)
	if err != nil {
		return interfaces.EnvAbsent
	}
	if !info.IsDir() {
		return interfaces.EnvCorrupt
	}

	// Stat follows symlinks, so a dangling bin/python (left behind after a
	// runtime upgrade) reports corrupt here.
	py, err := os.Stat(filepath.Join(envDir, "bin", "python"))
	if err != nil {
		return interfaces.EnvCorrupt
	}
	if py.IsDir() || py.Mode().Perm()&0o111 == 0 {
		return interfaces.EnvCorrupt
	}

	return interfaces.EnvPresent
}
