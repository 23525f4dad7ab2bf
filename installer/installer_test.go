package installer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/siteup/siteup/config"
	"github.com/siteup/siteup/interfaces"
	"github.com/siteup/siteup/sysexec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runCommands(runner *sysexec.MockRunner) []string {
	var lines []string
	for _, call := range runner.Calls {
		if call.Method == "Run" {
			lines = append(lines, sysexec.CommandLine(call))
		}
	}
	return lines
}

func TestEnsureRuntimePresent(t *testing.T) {
	runner := new(sysexec.MockRunner)
	runner.On("LookPath", "python3").Return("/usr/bin/python3", nil)
	runner.On("Output", mock.Anything, "python3", []string{"--version"}).Return([]byte("Python 3.11.2\n"), nil)

	inst := New(testLogger(), runner)
	env, err := inst.EnsureRuntime(context.Background(), config.RuntimeConfig{
		Interpreter:      "python3",
		FallbackPackages: []string{"python3.11", "python3.11-venv"},
	})
	require.NoError(t, err)
	assert.True(t, env.RuntimePresent)

	// Nothing to remediate: the package manager is never invoked.
	runner.AssertNotCalled(t, "Run", mock.Anything, "apt-get", mock.Anything)
}

func TestEnsureRuntimeAbsentInstallsFallback(t *testing.T) {
	runner := new(sysexec.MockRunner)
	runner.On("LookPath", "python3").Return("", errors.New("not found"))
	runner.On("Run", mock.Anything, "apt-get", []string{"update"}).Return(nil)
	runner.On("Run", mock.Anything, "apt-get", []string{"install", "-y", "python3.11", "python3.11-venv"}).Return(nil)

	inst := New(testLogger(), runner)
	env, err := inst.EnsureRuntime(context.Background(), config.RuntimeConfig{
		Interpreter:      "python3",
		FallbackPackages: []string{"python3.11", "python3.11-venv"},
	})
	require.NoError(t, err)

	// The probe result reflects what was found, not what was installed;
	// the run is not re-probed.
	assert.False(t, env.RuntimePresent)
	assert.Equal(t, []string{
		"apt-get update",
		"apt-get install -y python3.11 python3.11-venv",
	}, runCommands(runner))
	runner.AssertExpectations(t)
}

func TestEnsureRuntimeAbsentWithoutFallback(t *testing.T) {
	runner := new(sysexec.MockRunner)
	runner.On("LookPath", "python3").Return("", errors.New("not found"))

	inst := New(testLogger(), runner)
	_, err := inst.EnsureRuntime(context.Background(), config.RuntimeConfig{Interpreter: "python3"})
	assert.ErrorIs(t, err, interfaces.ErrRuntimeMissing)
}

func TestEnsureSystemPackagesUpdatesIndexOnce(t *testing.T) {
	runner := new(sysexec.MockRunner)
	runner.On("Run", mock.Anything, "apt-get", mock.Anything).Return(nil)

	inst := New(testLogger(), runner)
	require.NoError(t, inst.EnsureSystemPackages(context.Background(), []string{"nginx", "certbot"}))
	require.NoError(t, inst.EnsureSystemPackages(context.Background(), []string{"python3-venv"}))

	assert.Equal(t, []string{
		"apt-get update",
		"apt-get install -y nginx certbot",
		"apt-get install -y python3-venv",
	}, runCommands(runner))
}

func TestEnsureSystemPackagesFailureCarriesExitCode(t *testing.T) {
	runner := new(sysexec.MockRunner)
	runner.On("Run", mock.Anything, "apt-get", []string{"update"}).Return(nil)
	runner.On("Run", mock.Anything, "apt-get", []string{"install", "-y", "nginx"}).Return(
		&interfaces.ExternalToolError{Tool: "apt-get", ExitCode: 100})

	inst := New(testLogger(), runner)
	err := inst.EnsureSystemPackages(context.Background(), []string{"nginx"})
	require.Error(t, err)
	assert.Equal(t, 100, interfaces.ExitCode(err))
}

func TestEnsureEnvAbsentCreates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "venv")
	runner := new(sysexec.MockRunner)
	runner.On("Run", mock.Anything, "python3", []string{"-m", "venv", dir}).Return(nil)

	inst := New(testLogger(), runner)
	status, err := inst.EnsureEnv(context.Background(), "python3", dir)
	require.NoError(t, err)
	assert.Equal(t, interfaces.EnvAbsent, status)
	runner.AssertExpectations(t)
}

func TestEnsureEnvPresentIsNoOp(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "venv")
	makeEnv(t, dir, 0o755)

	runner := new(sysexec.MockRunner)
	inst := New(testLogger(), runner)

	// Running ensure any number of times over a present environment issues
	// no commands and leaves the directory exactly as it was.
	for range 3 {
		status, err := inst.EnsureEnv(context.Background(), "python3", dir)
		require.NoError(t, err)
		assert.Equal(t, interfaces.EnvPresent, status)
	}

	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
	assert.FileExists(t, filepath.Join(dir, "bin", "python"))
}

func TestEnsureEnvCorruptRecreates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "venv")
	require.NoError(t, os.MkdirAll(dir, 0o755)) // directory without an interpreter

	runner := new(sysexec.MockRunner)
	runner.On("Run", mock.Anything, "python3", []string{"-m", "venv", dir}).Return(nil)

	inst := New(testLogger(), runner)
	status, err := inst.EnsureEnv(context.Background(), "python3", dir)
	require.NoError(t, err)
	assert.Equal(t, interfaces.EnvCorrupt, status)

	// The corrupt tree was removed before recreation was attempted.
	assert.NoDirExists(t, dir)
	runner.AssertExpectations(t)
}

func TestEnsureLibraries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "venv")
	pip := filepath.Join(dir, "bin", "pip")

	runner := new(sysexec.MockRunner)
	runner.On("Run", mock.Anything, pip, []string{"install", "fastapi", "uvicorn[standard]", "psutil"}).Return(nil)

	inst := New(testLogger(), runner)
	err := inst.EnsureLibraries(context.Background(), dir, []string{"fastapi", "uvicorn[standard]", "psutil"})
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestEnsureLibrariesEmptySet(t *testing.T) {
	runner := new(sysexec.MockRunner)
	inst := New(testLogger(), runner)

	require.NoError(t, inst.EnsureLibraries(context.Background(), "/tmp/venv", nil))
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestUnpinnedLibraries(t *testing.T) {
	unpinned := unpinnedLibraries([]string{"fastapi==0.110.0", "psutil", "uvicorn[standard]"})
	assert.Equal(t, []string{"psutil", "uvicorn[standard]"}, unpinned)
}
