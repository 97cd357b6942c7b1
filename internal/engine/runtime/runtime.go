// Package runtime is the Worker Runtime Manager (C3): a per-persona durable
// inbox of InboundMessage records, synchronized with the active-persona
// list. Grounded on the teacher's SessionRegistry (internal/app/session_registry.go)
// mutex-guarded map idiom, generalized from session bookkeeping to message
// queues.
package runtime

import (
	"fmt"
	"sync"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// Store is the subset of the State Store the runtime manager needs.
type Store interface {
	QueueMessage(m domain.InboundMessage) (int, error)
	DrainMessages(recipientID int) ([]domain.InboundMessage, error)
	RemoveMessages(ids []int) error
	ClearAllMessages() error
}

// Manager tracks the active persona set and proxies inbox reads/writes to
// the State Store.
type Manager struct {
	mu     sync.Mutex
	store  Store
	active map[int]bool
}

// New creates a runtime Manager backed by store.
func New(store Store) *Manager {
	return &Manager{store: store, active: make(map[int]bool)}
}

// SyncRuntimes updates the active-persona set to exactly personIDs. Runtimes
// for personas no longer active are evicted from tracking (their persisted
// rows are left alone; a persona re-added later resumes its queue).
func (m *Manager) SyncRuntimes(personIDs []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[int]bool, len(personIDs))
	for _, id := range personIDs {
		next[id] = true
	}
	m.active = next
}

// IsActive reports whether personID is in the current active set.
func (m *Manager) IsActive(personID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[personID]
}

// QueueMessage persists msg and returns it with its assigned storage id.
func (m *Manager) QueueMessage(msg domain.InboundMessage) (domain.InboundMessage, error) {
	id, err := m.store.QueueMessage(msg)
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("runtime: queue message: %w", err)
	}
	msg.ID = id
	return msg, nil
}

// Drain returns all queued messages for personID in FIFO order and deletes
// the persisted rows, per spec.md §4.3.
func (m *Manager) Drain(personID int) ([]domain.InboundMessage, error) {
	msgs, err := m.store.DrainMessages(personID)
	if err != nil {
		return nil, fmt.Errorf("runtime: drain: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	ids := make([]int, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	if err := m.store.RemoveMessages(ids); err != nil {
		return nil, fmt.Errorf("runtime: drain remove: %w", err)
	}
	return msgs, nil
}

// ClearAll evicts the active set and deletes every persisted inbox row;
// used by reset/resetFull.
func (m *Manager) ClearAll() error {
	m.mu.Lock()
	m.active = make(map[int]bool)
	m.mu.Unlock()
	if err := m.store.ClearAllMessages(); err != nil {
		return fmt.Errorf("runtime: clear all: %w", err)
	}
	return nil
}
