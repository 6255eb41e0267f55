// ABOUTME: Tests for the quarantine store state machine and its durability.
// ABOUTME: Covers transitions, the concurrent-decision race, and restart recovery.

package quarantine

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/sigil/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	stateDir := filepath.Join(t.TempDir(), "state")
	workingDir := filepath.Join(t.TempDir(), "working")
	store, err := NewStore(stateDir, workingDir, testLogger())
	require.NoError(t, err)
	return store, stateDir, workingDir
}

func stageArtifact(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.py"), []byte("setup()\n"), 0o644))
	return dir
}

func TestAdmitCreatesPendingEntry(t *testing.T) {
	store, stateDir, _ := newTestStore(t)

	entry, err := store.Admit("scan-1", "npm:evil-pkg", "package", stageArtifact(t, "evil-pkg"))
	require.NoError(t, err)

	assert.Equal(t, types.QuarantinePending, entry.Status)
	assert.Equal(t, "scan-1", entry.ScanResultRef)
	assert.Nil(t, entry.DecidedAt)

	// The record must already be on disk.
	_, err = os.Stat(filepath.Join(stateDir, entry.ID+".json"))
	assert.NoError(t, err)
}

func TestApproveMovesArtifact(t *testing.T) {
	store, _, workingDir := newTestStore(t)
	artifact := stageArtifact(t, "good-pkg")

	entry, err := store.Admit("scan-1", "npm:good-pkg", "package", artifact)
	require.NoError(t, err)

	decided, err := store.Approve(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, types.QuarantineApproved, decided.Status)
	require.NotNil(t, decided.DecidedAt)

	// Artifact now lives in the working area, not in quarantine.
	_, err = os.Stat(filepath.Join(workingDir, "good-pkg", "setup.py"))
	assert.NoError(t, err)
	_, err = os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))
}

func TestRejectDeletesArtifactKeepsTombstone(t *testing.T) {
	store, _, _ := newTestStore(t)
	artifact := stageArtifact(t, "bad-pkg")

	entry, err := store.Admit("scan-2", "npm:bad-pkg", "package", artifact)
	require.NoError(t, err)

	decided, err := store.Reject(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, types.QuarantineRejected, decided.Status)

	_, err = os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))

	// The record survives as a tombstone.
	got, ok := store.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, types.QuarantineRejected, got.Status)
}

func TestDoubleDecisionIsInvalidTransition(t *testing.T) {
	store, _, _ := newTestStore(t)
	entry, err := store.Admit("scan-3", "npm:pkg", "package", stageArtifact(t, "pkg"))
	require.NoError(t, err)

	_, err = store.Approve(entry.ID)
	require.NoError(t, err)

	_, err = store.Approve(entry.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = store.Reject(entry.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestFailedMoveLeavesEntryPending(t *testing.T) {
	store, _, _ := newTestStore(t)

	// Artifact path that does not exist makes the rename fail.
	entry, err := store.Admit("scan-4", "npm:gone", "package", filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)

	_, err = store.Approve(entry.ID)
	var storageErr *types.StorageFailure
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, entry.ID, storageErr.EntryID)

	got, ok := store.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, types.QuarantinePending, got.Status, "failed decision must not change state")
}

func TestConcurrentDecisionExactlyOneWins(t *testing.T) {
	store, _, _ := newTestStore(t)
	entry, err := store.Admit("scan-5", "npm:contested", "package", stageArtifact(t, "contested"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = store.Approve(entry.ID)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = store.Reject(entry.ID)
	}()
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		if err == nil {
			wins++
		} else if errors.Is(err, types.ErrInvalidTransition) {
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one transition wins")
	assert.Equal(t, 1, losses, "the loser sees InvalidTransition")

	got, ok := store.Get(entry.ID)
	require.True(t, ok)
	assert.Contains(t, []types.QuarantineStatus{types.QuarantineApproved, types.QuarantineRejected}, got.Status)
}

func TestListFilters(t *testing.T) {
	store, _, _ := newTestStore(t)

	a, err := store.Admit("scan-a", "npm:a", "package", "")
	require.NoError(t, err)
	_, err = store.Admit("scan-b", "github.com/x/b", "repository", "")
	require.NoError(t, err)
	_, err = store.Approve(a.ID)
	require.NoError(t, err)

	assert.Len(t, store.List(Filter{}), 2)
	assert.Len(t, store.List(Filter{Status: types.QuarantinePending}), 1)
	assert.Len(t, store.List(Filter{Status: types.QuarantineApproved}), 1)
	assert.Len(t, store.List(Filter{SourceType: "repository"}), 1)
	assert.Len(t, store.List(Filter{Status: types.QuarantineRejected}), 0)
}

func TestStoreSurvivesRestart(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "state")
	workingDir := filepath.Join(t.TempDir(), "working")

	store, err := NewStore(stateDir, workingDir, testLogger())
	require.NoError(t, err)

	entry, err := store.Admit("scan-6", "npm:durable", "package", "")
	require.NoError(t, err)
	_, err = store.Reject(entry.ID)
	require.NoError(t, err)
	pending, err := store.Admit("scan-7", "npm:waiting", "package", "")
	require.NoError(t, err)

	reopened, err := NewStore(stateDir, workingDir, testLogger())
	require.NoError(t, err)

	got, ok := reopened.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, types.QuarantineRejected, got.Status)

	got, ok = reopened.Get(pending.ID)
	require.True(t, ok)
	assert.Equal(t, types.QuarantinePending, got.Status)

	// Decisions on reloaded entries still enforce the state machine.
	_, err = reopened.Reject(entry.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	_, err = reopened.Approve(pending.ID)
	assert.NoError(t, err)
}
