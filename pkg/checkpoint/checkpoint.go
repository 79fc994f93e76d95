// Package checkpoint persists build progress so an interrupted pipeline run
// can resume without repeating committed work.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Stage names one pipeline stage with independent progress.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageGraph     Stage = "graph"
	StageEmbedding Stage = "embedding"
)

// NoBatch is the LastCommitted value before any batch has been committed for
// a stage.
const NoBatch int64 = -1

// StageProgress records the last successfully committed batch of one stage.
type StageProgress struct {
	LastCommittedBatch int64     `json:"last_committed_batch"`
	CommittedAt        time.Time `json:"committed_at"`
}

// BuildCheckpoint is the process-wide build state: per-stage last committed
// batch sequence. It advances monotonically and is the sole source of truth
// for resuming a build; it is never rolled back except by explicit Reset.
type BuildCheckpoint struct {
	Stages    map[Stage]StageProgress `json:"stages"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Manager owns the durable checkpoint file. All advances go through one
// Manager under a single-writer discipline; callers serialize commits in
// batch submission order.
type Manager struct {
	path string

	mu sync.Mutex
	cp *BuildCheckpoint
}

// Open loads the checkpoint at path, creating an empty one if absent.
func Open(path string) (*Manager, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "expertgraph-checkpoint.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	m := &Manager{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
		}
		m.cp = newCheckpoint()
		if err := m.persistLocked(); err != nil {
			return nil, err
		}
		return m, nil
	}

	cp := &BuildCheckpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if cp.Stages == nil {
		cp.Stages = make(map[Stage]StageProgress)
	}
	m.cp = cp
	return m, nil
}

func newCheckpoint() *BuildCheckpoint {
	now := time.Now()
	return &BuildCheckpoint{
		Stages:    make(map[Stage]StageProgress),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Path returns the checkpoint file location.
func (m *Manager) Path() string { return m.path }

// LastCommitted returns the last committed batch sequence for a stage, or
// NoBatch if the stage has not committed anything.
func (m *Manager) LastCommitted(stage Stage) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.cp.Stages[stage]; ok {
		return p.LastCommittedBatch
	}
	return NoBatch
}

// Advance records that batch seq of the given stage committed, and persists
// the checkpoint. Advances must be strictly increasing per stage; a
// regressive or repeated sequence is rejected.
func (m *Manager) Advance(stage Stage, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	last := NoBatch
	if p, ok := m.cp.Stages[stage]; ok {
		last = p.LastCommittedBatch
	}
	if seq <= last {
		return fmt.Errorf("checkpoint regression for stage %s: batch %d is not after %d", stage, seq, last)
	}

	now := time.Now()
	m.cp.Stages[stage] = StageProgress{LastCommittedBatch: seq, CommittedAt: now}
	m.cp.UpdatedAt = now
	return m.persistLocked()
}

// Reset discards all recorded progress. The next build starts from scratch.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cp = newCheckpoint()
	return m.persistLocked()
}

// Snapshot returns a copy of the current checkpoint state.
func (m *Manager) Snapshot() BuildCheckpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := BuildCheckpoint{
		Stages:    make(map[Stage]StageProgress, len(m.cp.Stages)),
		CreatedAt: m.cp.CreatedAt,
		UpdatedAt: m.cp.UpdatedAt,
	}
	for k, v := range m.cp.Stages {
		out.Stages[k] = v
	}
	return out
}

// persistLocked writes the checkpoint to a temporary file and renames it into
// place for an atomic update. Callers must hold m.mu.
func (m *Manager) persistLocked() error {
	data, err := json.MarshalIndent(m.cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}
	return nil
}
