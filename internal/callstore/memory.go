package callstore

import (
	"context"
	"sync"
)

// MemoryStore keeps call records in a mutex-guarded map.
//
// Correct for a single relay instance only; run the redis-backed store when
// the relay is scaled horizontally, so callbacks and status queries landing on
// different instances see the same records.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.CallSID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, callSID string) (Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callSID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, callSID, status string, durationSeconds int) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callSID]
	if !ok {
		return false, nil
	}
	rec.Status = status
	rec.DurationSeconds = durationSeconds
	s.records[callSID] = rec
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, callSID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, callSID)
	return nil
}
