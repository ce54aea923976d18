// Checkpoint persistence. The engine is storage-agnostic behind the
// CheckpointStore interface; the production store serializes checkpoints to
// JSON in a single GORM-managed table, the in-memory store backs tests.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
)

// CheckpointStore persists conversation checkpoints keyed by thread id.
//
// Get returns (nil, nil) when no checkpoint exists for the thread; an error
// is reserved for storage failures.
type CheckpointStore interface {
	Get(ctx context.Context, threadID string) (*Checkpoint, error)
	Put(ctx context.Context, cp *Checkpoint) error
}

// checkpointRow is the persisted form of a Checkpoint: one row per thread,
// state as a JSON blob. Schema churn inside the checkpoint stays invisible
// to the database.
type checkpointRow struct {
	ThreadID  string    `gorm:"type:char(36);primaryKey"`
	State     []byte    `gorm:"type:blob;not null"`
	UpdatedAt time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (checkpointRow) TableName() string { return "workflow_checkpoints" }

// GormStore is a CheckpointStore backed by a GORM handle.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns a store persisting checkpoints via db. The backing
// table is created by MigrateCheckpoints.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

// MigrateCheckpoints creates the checkpoint table if needed.
func MigrateCheckpoints(db *gorm.DB) error {
	return db.AutoMigrate(&checkpointRow{})
}

// Get loads the checkpoint for threadID, or (nil, nil) when absent.
func (s *GormStore) Get(ctx context.Context, threadID string) (*Checkpoint, error) {
	var row checkpointRow
	err := s.db.WithContext(ctx).Where("thread_id = ?", threadID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(row.State, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Put writes the checkpoint, replacing any previous state for the thread.
func (s *GormStore) Put(ctx context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	state, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	row := checkpointRow{ThreadID: cp.ThreadID, State: state, UpdatedAt: cp.UpdatedAt}
	return s.db.WithContext(ctx).Save(&row).Error
}

// MemoryStore is an in-process CheckpointStore. Used by tests and by the
// keyless development mode; state does not survive a restart.
type MemoryStore struct {
	mu  sync.RWMutex
	cps map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cps: make(map[string][]byte)}
}

// Get returns a deep copy of the stored checkpoint, or (nil, nil) when absent.
func (s *MemoryStore) Get(_ context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	raw, ok := s.cps[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Put stores a deep copy of cp.
func (s *MemoryStore) Put(_ context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cps[cp.ThreadID] = raw
	s.mu.Unlock()
	return nil
}
