package persistence

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps snapshots in process. Snapshots are stored in encoded
// form so callers never share slices with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

// Save implements SessionStore.
func (s *MemoryStore) Save(ctx context.Context, snapshot ConversationSnapshot) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[snapshot.ID] = data
	return nil
}

// Load implements SessionStore.
func (s *MemoryStore) Load(ctx context.Context, id string) (*ConversationSnapshot, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	var snap ConversationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// List implements SessionStore.
func (s *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.items))
	for _, data := range s.items {
		var snap ConversationSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, err
		}
		out = append(out, snap.Summarize())
	}
	sortSummaries(out)
	return out, nil
}

// Delete implements SessionStore.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

// Close implements SessionStore.
func (s *MemoryStore) Close() error { return nil }
