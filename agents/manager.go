package agents

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/lexcodex/ceylo/persistence"
)

// Manager owns independent conversations keyed by id. Live conversations are
// kept in an idle-expiring cache; every turn is written through to the store
// so an evicted conversation is reloaded on its next message.
type Manager struct {
	env    *Environment
	store  persistence.SessionStore
	live   *cache.Cache
	logger *log.Logger
	newID  func() string

	// loadMu serializes cache misses so one id never has two live copies.
	loadMu sync.Mutex
}

// NewManager builds a manager. A nil store keeps snapshots in memory.
func NewManager(env *Environment, store persistence.SessionStore, logger *log.Logger) *Manager {
	env = normalizeEnv(env)
	if store == nil {
		store = persistence.NewMemoryStore()
	}
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		env:    env,
		store:  store,
		live:   cache.New(env.Settings.IdleTTL, cleanupInterval(env.Settings.IdleTTL)),
		logger: logger,
		newID:  uuid.NewString,
	}
	m.live.OnEvicted(func(id string, _ interface{}) {
		m.logger.Printf("conversation %s released from memory", id)
	})
	return m
}

func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// Store returns the backing snapshot store.
func (m *Manager) Store() persistence.SessionStore {
	return m.store
}

// Create starts a new conversation and persists its greeting.
func (m *Manager) Create(ctx context.Context) (*Conversation, error) {
	conv := NewConversation(m.newID(), m.env)
	if err := m.store.Save(ctx, conv.Snapshot()); err != nil {
		return nil, fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}
	m.live.SetDefault(conv.ID, conv)
	return conv, nil
}

// Get returns a live conversation, loading it from the store on a miss.
func (m *Manager) Get(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		return nil, ErrConversationNotFound
	}
	if conv, ok := m.cached(id); ok {
		return conv, nil
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if conv, ok := m.cached(id); ok {
		return conv, nil
	}
	snap, err := m.store.Load(ctx, id)
	if errors.Is(err, persistence.ErrSnapshotNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	conv := RestoreConversation(*snap, m.env)
	m.live.SetDefault(id, conv)
	return conv, nil
}

func (m *Manager) cached(id string) (*Conversation, bool) {
	v, ok := m.live.Get(id)
	if !ok {
		return nil, false
	}
	conv, ok := v.(*Conversation)
	return conv, ok
}

// Send runs one turn on the identified conversation and persists the result.
func (m *Manager) Send(ctx context.Context, id, text string) (*TurnResult, error) {
	conv, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return conv.send(ctx, text, func() { m.persist(ctx, conv) })
}

// persist writes a finished turn back to the cache and the store. It runs
// under the conversation's busy gate, so it cannot interleave with Delete or
// Reset.
func (m *Manager) persist(ctx context.Context, conv *Conversation) {
	if conv.retired {
		m.logger.Printf("conversation %s was replaced during the turn, result not saved", conv.ID)
		return
	}
	m.live.SetDefault(conv.ID, conv)
	if err := m.store.Save(ctx, conv.Snapshot()); err != nil {
		m.logger.Printf("save conversation %s: %v", conv.ID, err)
	}
}

// Reset replaces the conversation with a fresh trip under the same id.
func (m *Manager) Reset(ctx context.Context, id string) (*Conversation, error) {
	old, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !old.busy.TryLock() {
		return nil, ErrBusy
	}
	defer old.busy.Unlock()
	conv := NewConversation(id, m.env)
	conv.createdAt = old.Snapshot().CreatedAt
	if err := m.store.Save(ctx, conv.Snapshot()); err != nil {
		return nil, fmt.Errorf("save conversation %s: %w", id, err)
	}
	old.retired = true
	m.live.SetDefault(id, conv)
	return conv, nil
}

// Delete forgets a conversation. It fails with ErrBusy while a turn is in
// flight.
func (m *Manager) Delete(ctx context.Context, id string) error {
	conv, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if !conv.busy.TryLock() {
		return ErrBusy
	}
	defer conv.busy.Unlock()
	conv.retired = true
	m.live.Delete(id)
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

// List returns stored conversations, most recent first.
func (m *Manager) List(ctx context.Context) ([]persistence.Summary, error) {
	return m.store.List(ctx)
}

// Close flushes live conversations and closes the store.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for id, item := range m.live.Items() {
		conv, ok := item.Object.(*Conversation)
		if !ok {
			continue
		}
		if err := m.store.Save(ctx, conv.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("save conversation %s: %w", id, err))
		}
	}
	m.live.Flush()
	if err := m.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
