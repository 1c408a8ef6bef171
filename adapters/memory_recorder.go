// Package adapters holds storage implementations that need no external
// service.
package adapters

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/satriahrh/lisan/server/domain/entities"
	"github.com/satriahrh/lisan/server/domain/repositories"
)

// MemorySessionRecorder is an in-memory implementation of SessionRecorder,
// used when no MongoDB is configured. Records survive only for the process
// lifetime.
type MemorySessionRecorder struct {
	mu      sync.RWMutex
	records map[primitive.ObjectID]*entities.SessionRecord
}

var _ repositories.SessionRecorder = (*MemorySessionRecorder)(nil)

// NewMemorySessionRecorder creates an empty in-memory recorder.
func NewMemorySessionRecorder() *MemorySessionRecorder {
	return &MemorySessionRecorder{
		records: make(map[primitive.ObjectID]*entities.SessionRecord),
	}
}

// Create implements repositories.SessionRecorder.
func (m *MemorySessionRecorder) Create(ctx context.Context, record *entities.SessionRecord) error {
	if record == nil {
		return errors.New("session record cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	stored := *record
	m.records[record.ID] = &stored
	return nil
}

// Update implements repositories.SessionRecorder.
func (m *MemorySessionRecorder) Update(ctx context.Context, record *entities.SessionRecord) error {
	if record == nil {
		return errors.New("session record cannot be nil")
	}
	if record.ID.IsZero() {
		return errors.New("session record ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ID]; !ok {
		return errors.New("session record not found")
	}
	stored := *record
	m.records[record.ID] = &stored
	return nil
}

// Count reports the number of stored records.
func (m *MemorySessionRecorder) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Get returns a stored record by ID.
func (m *MemorySessionRecorder) Get(id primitive.ObjectID) (*entities.SessionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, false
	}
	copied := *record
	return &copied, true
}
