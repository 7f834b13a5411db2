package session

import (
	"sync"

	"github.com/zombar/litmatrix/internal/store"
)

// Manager hands out one controller per session id
type Manager struct {
	mu          sync.Mutex
	kv          store.KV
	deps        Deps
	controllers map[string]*Controller
}

// NewManager creates a manager over kv
func NewManager(kv store.KV, deps Deps) *Manager {
	return &Manager{
		kv:          kv,
		deps:        deps,
		controllers: make(map[string]*Controller),
	}
}

// Get returns the controller for id, loading its state on first use
func (m *Manager) Get(id string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.controllers[id]
	if !ok {
		c = NewController(id, m.kv, m.deps)
		m.controllers[id] = c
	}
	return c
}

// Reset wipes the session. The controller stays cached so requests already
// holding it are serialized against the reset.
func (m *Manager) Reset(id string) {
	m.Get(id).ResetSession()
}
