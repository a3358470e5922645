package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps idempotency records in process. It backs local runs
// with the memory fulfillment store and handler tests.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]Record
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(ttlWindow time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   map[string]Record{},
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Begin has the semantics of Store.Begin.
func (m *MemoryStore) Begin(_ context.Context, key, requestHash string) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc().UTC()
	if existing, ok := m.records[key]; ok && !existing.Claimable(now) {
		return &existing, false, nil
	}
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		RequestHash:    requestHash,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(m.ttlWindow).Unix(),
	}
	m.records[key] = rec
	return &rec, true, nil
}

// Get returns nil for unknown or expired keys.
func (m *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.Expired(m.nowFunc()) {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) MarkDone(_ context.Context, key, entityID, responseBody string, responseStatus int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[key]
	rec.Status = StatusDone
	rec.EntityID = entityID
	rec.ResponseBody = responseBody
	rec.ResponseStatus = responseStatus
	rec.UpdatedAt = m.nowFunc().UTC()
	m.records[key] = rec
	return nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, key, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[key]
	rec.Status = StatusFailed
	rec.Note = note
	rec.UpdatedAt = m.nowFunc().UTC()
	m.records[key] = rec
	return nil
}
