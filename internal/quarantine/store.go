// ABOUTME: Durable quarantine store gating untrusted artifacts behind an admit decision.
// ABOUTME: One JSON record per entry, atomic replace, per-entry locks for the state machine.

package quarantine

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigil-dev/sigil/internal/types"
)

// Store is a durable state machine over quarantine entries. Each entry lives
// in its own JSON record under the state directory, so a crash between
// operations never corrupts more than the entry being written, and records
// survive process restarts.
type Store struct {
	stateDir   string
	workingDir string
	logger     *logrus.Logger

	mu      sync.Mutex
	entries map[string]*types.QuarantineEntry
	locks   map[string]*sync.Mutex

	now func() time.Time
}

// NewStore opens (or creates) a quarantine store rooted at stateDir, loading
// any existing entry records. Approved artifacts are moved into workingDir.
func NewStore(stateDir, workingDir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create quarantine state dir: %w", err)
	}
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working dir: %w", err)
	}

	s := &Store{
		stateDir:   stateDir,
		workingDir: workingDir,
		logger:     logger,
		entries:    make(map[string]*types.QuarantineEntry),
		locks:      make(map[string]*sync.Mutex),
		now:        time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads every entry record from the state directory into memory.
func (s *Store) load() error {
	dirEntries, err := os.ReadDir(s.stateDir)
	if err != nil {
		return fmt.Errorf("failed to read quarantine state dir: %w", err)
	}

	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.stateDir, de.Name()))
		if err != nil {
			return fmt.Errorf("failed to read quarantine record %s: %w", de.Name(), err)
		}
		var entry types.QuarantineEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("failed to parse quarantine record %s: %w", de.Name(), err)
		}
		s.entries[entry.ID] = &entry
	}

	s.logger.WithFields(logrus.Fields{
		"component":   "quarantine",
		"entry_count": len(s.entries),
	}).Info("Quarantine store loaded")
	return nil
}

// Admit creates a pending entry for an artifact sitting at artifactPath.
// It succeeds whenever the state directory is writable.
func (s *Store) Admit(scanResultRef, source, sourceType, artifactPath string) (*types.QuarantineEntry, error) {
	entry := &types.QuarantineEntry{
		ID:            newEntryID(),
		Source:        source,
		SourceType:    sourceType,
		Status:        types.QuarantinePending,
		ScanResultRef: scanResultRef,
		ArtifactPath:  artifactPath,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.persist(entry); err != nil {
		return nil, &types.StorageFailure{EntryID: entry.ID, Op: "admit", Err: err}
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"component":   "quarantine",
		"entry_id":    entry.ID,
		"source":      source,
		"source_type": sourceType,
	}).Info("Artifact admitted to quarantine")
	return entry, nil
}

// Approve moves the quarantined artifact into the working area and marks the
// entry approved. If the move or the record write fails, the entry stays
// pending and a StorageFailure is returned. A second decision on the same
// entry fails with ErrInvalidTransition.
func (s *Store) Approve(id string) (*types.QuarantineEntry, error) {
	return s.decide(id, types.QuarantineApproved)
}

// Reject deletes the quarantined artifact and marks the entry rejected. The
// record itself is kept as a tombstone.
func (s *Store) Reject(id string) (*types.QuarantineEntry, error) {
	return s.decide(id, types.QuarantineRejected)
}

func (s *Store) decide(id string, target types.QuarantineStatus) (*types.QuarantineEntry, error) {
	lock := s.entryLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return nil, &types.StorageFailure{EntryID: id, Op: string(target), Err: os.ErrNotExist}
	}
	if entry.Status != types.QuarantinePending {
		return nil, fmt.Errorf("entry %s is already %s: %w", id, entry.Status, types.ErrInvalidTransition)
	}

	// Move or delete the artifact first; only a fully applied side effect
	// earns a terminal status. On failure the entry remains pending.
	if entry.ArtifactPath != "" {
		var err error
		switch target {
		case types.QuarantineApproved:
			dest := filepath.Join(s.workingDir, filepath.Base(entry.ArtifactPath))
			err = os.Rename(entry.ArtifactPath, dest)
		case types.QuarantineRejected:
			err = os.RemoveAll(entry.ArtifactPath)
		}
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"component": "quarantine",
				"entry_id":  id,
				"decision":  string(target),
			}).WithError(err).Error("Artifact operation failed, entry stays pending")
			return nil, &types.StorageFailure{EntryID: id, Op: string(target), Err: err}
		}
	}

	decidedAt := s.now().UTC()
	updated := *entry
	updated.Status = target
	updated.DecidedAt = &decidedAt
	if target == types.QuarantineApproved && entry.ArtifactPath != "" {
		updated.ArtifactPath = filepath.Join(s.workingDir, filepath.Base(entry.ArtifactPath))
	}
	if target == types.QuarantineRejected {
		updated.ArtifactPath = ""
	}

	if err := s.persist(&updated); err != nil {
		return nil, &types.StorageFailure{EntryID: id, Op: string(target), Err: err}
	}

	s.mu.Lock()
	s.entries[id] = &updated
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"component": "quarantine",
		"entry_id":  id,
		"decision":  string(target),
	}).Info("Quarantine entry decided")
	return &updated, nil
}

// Get returns a copy of the entry, if it exists.
func (s *Store) Get(id string) (*types.QuarantineEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	Status     types.QuarantineStatus
	SourceType string
}

// List returns matching entries sorted by creation time, newest first.
func (s *Store) List(filter Filter) []types.QuarantineEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.QuarantineEntry
	for _, entry := range s.entries {
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		if filter.SourceType != "" && entry.SourceType != filter.SourceType {
			continue
		}
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CountByStatus tallies entries per status, for metrics exposition.
func (s *Store) CountByStatus() map[types.QuarantineStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[types.QuarantineStatus]int)
	for _, entry := range s.entries {
		counts[entry.Status]++
	}
	return counts
}

// persist writes the entry record atomically: temp file in the same
// directory, fsync-free rename replace.
func (s *Store) persist(entry *types.QuarantineEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal quarantine record: %w", err)
	}

	final := filepath.Join(s.stateDir, entry.ID+".json")
	tmp, err := os.CreateTemp(s.stateDir, entry.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp record: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

// entryLock returns the mutex serializing decisions for one entry id.
func (s *Store) entryLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func newEntryID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("q-%d", time.Now().UnixNano())
	}
	return "q-" + hex.EncodeToString(buf)
}
