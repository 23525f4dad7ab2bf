// Package installer puts the host's system packages, language runtime, and
// isolated application environment in place. All mutations go through the
// package manager and the runtime's own tooling; the installer itself only
// decides what needs doing.
package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/siteup/siteup/config"
	"github.com/siteup/siteup/interfaces"
)

// Installer ensures host-level dependencies. One instance serves one run;
// the package index is refreshed at most once per instance.
type Installer struct {
	log    *slog.Logger
	runner interfaces.CommandRunner

	aptUpdated bool
}

// New creates an installer running commands through runner.
func New(log *slog.Logger, runner interfaces.CommandRunner) *Installer {
	return &Installer{log: log, runner: runner}
}

// EnsureRuntime probes for the interpreter and installs the fallback
// packages when it is absent. The installation happens at most once per run
// and is not re-verified afterwards; if the fallback packages do not
// actually provide the interpreter, environment creation fails later with
// the real error.
func (i *Installer) EnsureRuntime(ctx context.Context, rt config.RuntimeConfig) (interfaces.HostEnvironment, error) {
	env := DetectRuntime(ctx, i.runner, rt.Interpreter)
	if env.RuntimePresent {
		i.log.Info("Language runtime present", "interpreter", rt.Interpreter, "path", env.RuntimePath, "version", env.RuntimeVersion)
		return env, nil
	}

	if len(rt.FallbackPackages) == 0 {
		return env, fmt.Errorf("%w: %s (no fallback packages configured)", interfaces.ErrRuntimeMissing, rt.Interpreter)
	}

	i.log.Info("Language runtime absent, installing fallback packages", "interpreter", rt.Interpreter, "packages", rt.FallbackPackages)
	if err := i.aptInstall(ctx, rt.FallbackPackages); err != nil {
		return env, fmt.Errorf("installing runtime fallback: %w", err)
	}
	return env, nil
}

// EnsureSystemPackages installs the system package set. The package manager
// handles already-installed packages itself, so the full list goes through
// on every run.
func (i *Installer) EnsureSystemPackages(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}

	i.log.Debug("Ensuring system packages", "packages", packages)
	if err := i.aptInstall(ctx, packages); err != nil {
		return fmt.Errorf("installing system packages: %w", err)
	}
	return nil
}

// EnsureEnv creates the isolated environment when it is absent and
// recreates it when it is corrupt. A present environment is left exactly
// as it is, no commands run. Returns the status the probe found before any
// remediation.
func (i *Installer) EnsureEnv(ctx context.Context, interpreter, envDir string) (interfaces.EnvStatus, error) {
	status := ProbeEnv(envDir)

	switch status {
	case interfaces.EnvPresent:
		i.log.Info("Isolated environment present, skipping creation", "dir", envDir)
		return status, nil

	case interfaces.EnvCorrupt:
		i.log.Warn("Isolated environment corrupt, recreating", "dir", envDir)
		if err := os.RemoveAll(envDir); err != nil {
			return status, fmt.Errorf("removing corrupt environment: %w", err)
		}

	case interfaces.EnvAbsent:
		i.log.Info("Creating isolated environment", "dir", envDir)
	}

	if err := i.runner.Run(ctx, interpreter, "-m", "venv", envDir); err != nil {
		return status, fmt.Errorf("creating isolated environment: %w", err)
	}
	return status, nil
}

// EnsureLibraries installs the application libraries into the environment.
// The full set is installed on every run; entries without explicit pins
// resolve to whatever the index currently serves.
func (i *Installer) EnsureLibraries(ctx context.Context, envDir string, libraries []string) error {
	if len(libraries) == 0 {
		return nil
	}

	i.log.Debug("Ensuring application libraries", "libraries", libraries)
	if unpinned := unpinnedLibraries(libraries); len(unpinned) > 0 {
		i.log.Warn("Library versions are not pinned; resolution may drift between runs", "unpinned", unpinned)
	}

	pip := filepath.Join(envDir, "bin", "pip")
	args := append([]string{"install"}, libraries...)
	if err := i.runner.Run(ctx, pip, args...); err != nil {
		return fmt.Errorf("installing application libraries: %w", err)
	}
	return nil
}

func unpinnedLibraries(libraries []string) []string {
	var unpinned []string
	for _, lib := range libraries {
		if !strings.Contains(lib, "==") {
			unpinned = append(unpinned, lib)
		}
	}
	return unpinned
}

// aptInstall refreshes the package index at most once per run, then
// installs the given packages non-interactively.
func (i *Installer) aptInstall(ctx context.Context, packages []string) error {
	if !i.aptUpdated {
		if err := i.runner.Run(ctx, "apt-get", "update"); err != nil {
			return fmt.Errorf("refreshing package index: %w", err)
		}
		i.aptUpdated = true
	}

	args := append([]string{"install", "-y"}, packages...)
	return i.runner.Run(ctx, "apt-get", args...)
}
