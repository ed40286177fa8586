package counterparty

import (
	"sync"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

// State is the balance load state of one counterparty.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "idle"
	}
}

// Cache tracks per-counterparty balance state for one screen.
//
// Every load is tagged with the generation current when it started;
// Invalidate bumps the generation so results of loads started under an older
// filter are discarded.
type Cache struct {
	mu       sync.Mutex
	gen      uint64
	states   map[string]State
	balances map[string]ledger.Balance
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		states:   make(map[string]State),
		balances: make(map[string]ledger.Balance),
	}
}

// State returns the state of id.
func (c *Cache) State(id string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[id]
}

// Has reports whether the balance of id is loaded.
func (c *Cache) Has(id string) bool {
	return c.State(id) == StateLoaded
}

// MarkLoading moves id from idle to loading. It returns false, and the caller
// must not fetch, when id is already loading or loaded.
func (c *Cache) MarkLoading(id string) (gen uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.states[id] != StateIdle {
		return c.gen, false
	}
	c.states[id] = StateLoading
	return c.gen, true
}

// MarkLoaded stores the balance of a load started at gen. A load from an
// older generation is dropped and false is returned.
func (c *Cache) MarkLoaded(id string, gen uint64, b ledger.Balance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.states[id] != StateLoading {
		return false
	}
	c.states[id] = StateLoaded
	c.balances[id] = b
	return true
}

// MarkFailed returns id to idle so a later visibility event can retry.
// The last known balance, if any, is kept.
func (c *Cache) MarkFailed(id string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.states[id] != StateLoading {
		return
	}
	delete(c.states, id)
}

// Invalidate resets every counterparty to idle and drops all balances.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.states = make(map[string]State)
	c.balances = make(map[string]ledger.Balance)
}

// Balance returns the last known balance of id.
func (c *Cache) Balance(id string) (ledger.Balance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.balances[id]
	return b, ok
}

// Generation returns the current generation.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}
