// Package store persists quest records. Every backend keys records by
// (player, quest type) and rejects writes whose revision is not newer than
// the stored one, so saves that complete out of order cannot roll state back.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

var (
	// ErrStaleRevision is returned by Save when a newer revision is already stored.
	ErrStaleRevision = errors.New("stale record revision")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// Store is the persistence collaborator of the engine.
type Store interface {
	// Load returns the record for one quest type. ok is false when none exists.
	Load(ctx context.Context, playerID, questType string) (rec quest.Record, ok bool, err error)

	// LoadAll returns every record of a player, ordered by quest type.
	LoadAll(ctx context.Context, playerID string) ([]quest.Record, error)

	// Save writes rec if its revision is newer than the stored one.
	Save(ctx context.Context, rec quest.Record) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, playerID, questType string) error

	Close() error
}

type recordKey struct {
	player string
	quest  string
}

// MemoryStore is an in-process Store used by tests and the "memory" driver.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]quest.Record
	closed  bool
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]quest.Record)}
}

func (m *MemoryStore) Load(ctx context.Context, playerID, questType string) (quest.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return quest.Record{}, false, ErrClosed
	}
	rec, ok := m.records[recordKey{playerID, questType}]
	return cloneRecord(rec), ok, nil
}

func (m *MemoryStore) LoadAll(ctx context.Context, playerID string) ([]quest.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []quest.Record
	for k, rec := range m.records {
		if k.player == playerID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestType < out[j].QuestType })
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, rec quest.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	key := recordKey{rec.PlayerID, rec.QuestType}
	if cur, ok := m.records[key]; ok && cur.Revision >= rec.Revision {
		return ErrStaleRevision
	}
	m.records[key] = cloneRecord(rec)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, playerID, questType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.records, recordKey{playerID, questType})
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of stored records
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func cloneRecord(r quest.Record) quest.Record {
	if r.Goals != nil {
		r.Goals = append([]quest.GoalProgress(nil), r.Goals...)
	}
	if r.GrantedItems != nil {
		r.GrantedItems = append([]string(nil), r.GrantedItems...)
	}
	return r
}
