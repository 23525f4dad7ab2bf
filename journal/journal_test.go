package journal

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(testLogger(), filepath.Join(t.TempDir(), "state", FileName))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id string, started time.Time) Run {
	return Run{
		ID:         id,
		Domain:     "mc.example.com",
		Port:       8000,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		OK:         true,
		Stages: []Stage{
			{Seq: 1, Stage: "runtime", OK: true},
			{Seq: 2, Stage: "system-packages", OK: true},
			{Seq: 3, Stage: "certificate", OK: true},
		},
	}
}

func TestOpenCreatesStateDirectory(t *testing.T) {
	// The state directory does not exist yet on a fresh host.
	path := filepath.Join(t.TempDir(), "var", "lib", "siteup", FileName)

	store, err := Open(testLogger(), path)
	require.NoError(t, err)
	defer store.Close()

	assert.FileExists(t, path)
}

func TestRecordAndLastRun(t *testing.T) {
	store := openTestStore(t)
	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(testRun("run-1", started)))

	last, err := store.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)

	assert.Equal(t, "run-1", last.ID)
	assert.Equal(t, "mc.example.com", last.Domain)
	assert.Equal(t, 8000, last.Port)
	assert.True(t, last.OK)
	assert.Empty(t, last.FailedStage)
	assert.Equal(t, 0, last.ExitCode)
	assert.True(t, last.StartedAt.Equal(started), "start time survives the round trip")
	assert.True(t, last.FinishedAt.Equal(started.Add(90*time.Second)))

	require.Len(t, last.Stages, 3)
	assert.Equal(t, "runtime", last.Stages[0].Stage)
	assert.Equal(t, "certificate", last.Stages[2].Stage)
	assert.True(t, last.Stages[2].OK)
}

func TestLastRunEmpty(t *testing.T) {
	store := openTestStore(t)

	last, err := store.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestRecordFailedRun(t *testing.T) {
	store := openTestStore(t)

	run := Run{
		ID:          "run-fail",
		Domain:      "mc.example.com",
		Port:        8000,
		StartedAt:   time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2026, 8, 25, 11, 2, 0, 0, time.UTC),
		OK:          false,
		FailedStage: "certificate",
		Error:       "certificate: obtaining certificate for mc.example.com: certbot failed (exit 1)",
		ExitCode:    1,
		Stages: []Stage{
			{Seq: 1, Stage: "runtime", OK: true},
			{Seq: 2, Stage: "certificate", OK: false, Error: "certbot failed (exit 1)"},
		},
	}
	require.NoError(t, store.Record(run))

	last, err := store.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)

	assert.False(t, last.OK)
	assert.Equal(t, "certificate", last.FailedStage)
	assert.Equal(t, 1, last.ExitCode)
	assert.Contains(t, last.Error, "certbot failed")

	require.Len(t, last.Stages, 2)
	assert.True(t, last.Stages[0].OK)
	assert.False(t, last.Stages[1].OK)
	assert.Equal(t, "certbot failed (exit 1)", last.Stages[1].Error)
}

func TestRunsNewestFirstWithLimit(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(testRun("run-1", base)))
	require.NoError(t, store.Record(testRun("run-2", base.Add(time.Hour))))
	require.NoError(t, store.Record(testRun("run-3", base.Add(2*time.Hour))))

	runs, err := store.Runs(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)

	// Each listed run carries its stages.
	assert.Len(t, runs[0].Stages, 3)

	all, err := store.Runs(10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	started := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	store, err := Open(testLogger(), path)
	require.NoError(t, err)
	require.NoError(t, store.Record(testRun("run-1", started)))
	require.NoError(t, store.Close())

	// A later process sees the earlier run.
	reopened, err := Open(testLogger(), path)
	require.NoError(t, err)
	defer reopened.Close()

	last, err := reopened.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-1", last.ID)
}

func TestRecordDuplicateIDRejected(t *testing.T) {
	store := openTestStore(t)
	started := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(testRun("run-1", started)))
	assert.Error(t, store.Record(testRun("run-1", started.Add(time.Minute))))

	// The rejected insert left nothing behind.
	runs, err := store.Runs(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Len(t, runs[0].Stages, 3)
}
