// Package transaction defines the identity and lifecycle bookkeeping for
// transactions. It does not know how to roll back or flush a page -- that is
// the buffer pool's job. This package only answers "what transactions exist
// and what state are they in".
package transaction

import (
	"sync"

	"github.com/google/uuid"
)

// ID identifies a transaction for the lifetime of a process. It wraps a
// uuid.UUID instead of an incrementing counter so ids stay unique even if
// recovery or replay is added later without renumbering anything in flight.
type ID struct {
	uuid uuid.UUID
}

// NewID allocates a fresh transaction id.
func NewID() ID {
	return ID{uuid: uuid.New()}
}

func (id ID) String() string {
	return id.uuid.String()
}

// IsZero reports whether id is the zero value (never allocated by NewID).
func (id ID) IsZero() bool {
	return id.uuid == uuid.UUID{}
}

// State is the lifecycle stage of a transaction.
type State int

const (
	Active State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Manager tracks which transactions are currently active. It is a plain
// registry: it does not touch pages, locks, or files. Callers drive the
// actual commit/abort protocol (buffer pool flush/rollback, lock release)
// and then report the outcome here.
type Manager struct {
	mu     sync.Mutex
	active map[ID]State
}

// NewManager returns an empty transaction registry.
func NewManager() *Manager {
	return &Manager{active: make(map[ID]State)}
}

// Begin registers a new active transaction and returns its id.
func (m *Manager) Begin() ID {
	id := NewID()
	m.mu.Lock()
	m.active[id] = Active
	m.mu.Unlock()
	return id
}

// Commit ends id's active state. The registry keeps no record of finished
// transactions, so id is dropped and IsActive reports false afterwards.
// Idempotent: committing an unknown or finished id is a no-op.
func (m *Manager) Commit(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; ok {
		m.active[id] = Committed
		delete(m.active, id)
	}
}

// Abort ends id's active state, dropping it from the registry like Commit.
// Aborting an unknown or finished id is a no-op.
func (m *Manager) Abort(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; ok {
		m.active[id] = Aborted
		delete(m.active, id)
	}
}

// IsActive reports whether id is currently an active, unfinished transaction.
func (m *Manager) IsActive(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.active[id]
	return ok && state == Active
}
