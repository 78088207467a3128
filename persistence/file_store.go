package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const snapshotSuffix = ".conversation.json"

// FileStore keeps one JSON file per conversation.
type FileStore struct {
	root string
	mu   sync.RWMutex
}

// NewFileStore builds a store in the provided root directory.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("session store root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) pathFor(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid conversation id %q", id)
	}
	return filepath.Join(s.root, id+snapshotSuffix), nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(ctx context.Context, snapshot ConversationSnapshot) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	path, err := s.pathFor(snapshot.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a snapshot.
func (s *FileStore) Load(ctx context.Context, id string) (*ConversationSnapshot, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	path, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readSnapshot(path)
}

// List returns summaries, most recently updated first.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotSuffix) {
			continue
		}
		snap, err := readSnapshot(filepath.Join(s.root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		out = append(out, snap.Summarize())
	}
	sortSummaries(out)
	return out, nil
}

// Delete removes a snapshot. Deleting an unknown id is not an error.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	path, err := s.pathFor(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close implements SessionStore.
func (s *FileStore) Close() error { return nil }

func readSnapshot(path string) (*ConversationSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	var snap ConversationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
