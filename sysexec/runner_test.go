package sysexec

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteup/siteup/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeStub drops a fake executable into dir so runner tests never touch
// real system tools.
func writeStub(t *testing.T, dir, name, script string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+script), 0o755)
	require.NoError(t, err)
}

func TestRunnerRun(t *testing.T) {
	dir := t.TempDir()
	writeStub(t, dir, "okcmd", "exit 0\n")
	writeStub(t, dir, "failcmd", "exit 3\n")
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	runner := NewRunner(testLogger())

	require.NoError(t, runner.Run(context.Background(), "okcmd"))

	err := runner.Run(context.Background(), "failcmd", "--flag")
	require.Error(t, err)

	var toolErr *interfaces.ExternalToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "failcmd", toolErr.Tool)
	assert.Equal(t, []string{"--flag"}, toolErr.Args)
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Equal(t, 3, interfaces.ExitCode(err))
}

func TestRunnerOutput(t *testing.T) {
	dir := t.TempDir()
	writeStub(t, dir, "verscmd", "echo 'Python 3.11.2'\n")
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	runner := NewRunner(testLogger())

	out, err := runner.Output(context.Background(), "verscmd", "--version")
	require.NoError(t, err)
	assert.Equal(t, "Python 3.11.2\n", string(out))
}

func TestRunnerMissingCommand(t *testing.T) {
	runner := NewRunner(testLogger())

	err := runner.Run(context.Background(), "siteup-no-such-tool")
	require.Error(t, err)

	var toolErr *interfaces.ExternalToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, 127, toolErr.ExitCode)
}

func TestRunnerLookPath(t *testing.T) {
	dir := t.TempDir()
	writeStub(t, dir, "somecmd", "exit 0\n")
	t.Setenv("PATH", dir)

	runner := NewRunner(testLogger())

	path, err := runner.LookPath("somecmd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "somecmd"), path)

	_, err = runner.LookPath("othercmd")
	assert.Error(t, err)
}
