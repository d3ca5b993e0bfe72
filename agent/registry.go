package agent

import (
	"fmt"
	"sync"
)

// Registry holds the agent catalog in registration order.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Definition
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*Definition),
	}
}

// Register adds an agent. Ids must be unique.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[def.ID]; exists {
		return fmt.Errorf("agent %s already registered", def.ID)
	}
	r.agents[def.ID] = def
	r.order = append(r.order, def.ID)
	return nil
}

// Get returns an agent by ID.
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.agents[id]
	return def, ok
}

// All returns all agents in registration order.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.order))
	for _, id := range r.order {
		defs = append(defs, r.agents[id])
	}
	return defs
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
