package catalog

import (
	"context"
	"sort"
	"sync"
)

// Store persists catalog records keyed by plugin id
type Store interface {
	// FindAll returns every record ordered by id
	FindAll(ctx context.Context) ([]Record, error)

	// FindByID returns one record or ErrRecordNotFound
	FindByID(ctx context.Context, id string) (*Record, error)

	// Replace inserts or fully replaces a record
	Replace(ctx context.Context, rec Record) error

	// SetEnabled updates the enabled flag only. ErrRecordNotFound for unknown ids.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// Delete removes a record. ErrRecordNotFound for unknown ids.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// FindAll implements Store
func (s *MemoryStore) FindAll(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindByID implements Store
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := rec.Clone()
	return &clone, nil
}

// Replace implements Store
func (s *MemoryStore) Replace(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec.Clone()
	return nil
}

// SetEnabled implements Store
func (s *MemoryStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Enabled = enabled
	s.records[id] = rec
	return nil
}

// Delete implements Store
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(s.records, id)
	return nil
}
