package market

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds every market the venue trades. Markets are created
// explicitly, at startup from config or later by the authority; there is no
// implicit creation on first order.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market
}

func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Register adds a new market. Returns an error if the pair already exists.
func (r *Registry) Register(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markets[m.ID]; exists {
		return fmt.Errorf("market %s already registered", m.ID)
	}
	r.markets[m.ID] = m
	return nil
}

// Get retrieves a market by id.
func (r *Registry) Get(id string) (*Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	return m, ok
}

// List returns all markets sorted by id ascending, matching the ordered
// range-scan the bids/asks queries expose.
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.markets[id]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
