package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/siteup/siteup/interfaces"
	"github.com/siteup/siteup/sysexec"
)

// makeEnv lays out a minimal isolated environment under dir.
func makeEnv(t *testing.T, dir string, pythonMode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "python"), []byte("#!/bin/sh\n"), pythonMode))
}

func TestProbeEnv(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		assert.Equal(t, interfaces.EnvAbsent, ProbeEnv(filepath.Join(t.TempDir(), "venv")))
	})

	t.Run("present", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "venv")
		makeEnv(t, dir, 0o755)
		assert.Equal(t, interfaces.EnvPresent, ProbeEnv(dir))
	})

	t.Run("corrupt: empty directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "venv")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		assert.Equal(t, interfaces.EnvCorrupt, ProbeEnv(dir))
	})

	t.Run("corrupt: interpreter not executable", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "venv")
		makeEnv(t, dir, 0o644)
		assert.Equal(t, interfaces.EnvCorrupt, ProbeEnv(dir))
	})

	t.Run("corrupt: plain file at env path", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "venv")
		require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0o644))
		assert.Equal(t, interfaces.EnvCorrupt, ProbeEnv(dir))
	})

	t.Run("corrupt: dangling interpreter link", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "venv")
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
		require.NoError(t, os.Symlink("/nonexistent/python3", filepath.Join(dir, "bin", "python")))
		assert.Equal(t, interfaces.EnvCorrupt, ProbeEnv(dir))
	})
}

func TestDetectRuntime(t *testing.T) {
	t.Run("present with version", func(t *testing.T) {
		runner := new(sysexec.MockRunner)
		runner.On("LookPath", "python3").Return("/usr/bin/python3", nil)
		runner.On("Output", mock.Anything, "python3", []string{"--version"}).Return([]byte("Python 3.11.2\n"), nil)

		env := DetectRuntime(context.Background(), runner, "python3")
		assert.True(t, env.RuntimePresent)
		assert.Equal(t, "/usr/bin/python3", env.RuntimePath)
		assert.Equal(t, "3.11.2", env.RuntimeVersion)
	})

	t.Run("absent", func(t *testing.T) {
		runner := new(sysexec.MockRunner)
		runner.On("LookPath", "python3").Return("", errors.New("executable file not found in $PATH"))

		env := DetectRuntime(context.Background(), runner, "python3")
		assert.False(t, env.RuntimePresent)
		assert.Empty(t, env.RuntimePath)
	})

	t.Run("version query fails", func(t *testing.T) {
		runner := new(sysexec.MockRunner)
		runner.On("LookPath", "python3").Return("/usr/bin/python3", nil)
		runner.On("Output", mock.Anything, "python3", []string{"--version"}).Return(nil, errors.New("boom"))

		env := DetectRuntime(context.Background(), runner, "python3")
		assert.True(t, env.RuntimePresent)
		assert.Empty(t, env.RuntimeVersion)
	})
}

func TestParseRuntimeVersion(t *testing.T) {
	assert.Equal(t, "3.11.2", parseRuntimeVersion("Python 3.11.2\n"))
	assert.Equal(t, "3.12", parseRuntimeVersion("Python 3.12"))
	assert.Equal(t, "weird output", parseRuntimeVersion("weird output\nsecond line"))
}
