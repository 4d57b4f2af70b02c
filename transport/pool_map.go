package transport

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// PoolFactory constructs the pool for an endpoint seen for the first time.
type PoolFactory func(Endpoint) (*FixedPool, error)

// PoolMap lazily materialises one FixedPool per endpoint. A pool reachable
// through the map is operational; closed pools are replaced on the next
// lookup and never handed to new callers.
type PoolMap struct {
	mu      sync.RWMutex
	pools   map[Endpoint]*FixedPool
	factory PoolFactory
}

// NewPoolMap returns an empty pool map using factory for new endpoints.
func NewPoolMap(factory PoolFactory) *PoolMap {
	return &PoolMap{
		pools:   make(map[Endpoint]*FixedPool),
		factory: factory,
	}
}

// Get returns the pool for ep, creating it on first use. Concurrent
// lookups for the same endpoint observe the same instance; an instance
// that loses the install race is closed and discarded.
func (m *PoolMap) Get(ep Endpoint) (*FixedPool, error) {
	m.mu.RLock()
	p := m.pools[ep]
	m.mu.RUnlock()
	if p != nil && !p.Closed() {
		return p, nil
	}

	fresh, err := m.factory(ep)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if cur := m.pools[ep]; cur != nil && !cur.Closed() {
		m.mu.Unlock()
		fresh.CloseAsync()
		return cur, nil
	}
	m.pools[ep] = fresh
	m.mu.Unlock()
	return fresh, nil
}

// Remove evicts the pool for ep and closes it. It reports whether a pool
// was present.
func (m *PoolMap) Remove(ep Endpoint) bool {
	m.mu.Lock()
	p := m.pools[ep]
	delete(m.pools, ep)
	m.mu.Unlock()

	if p == nil {
		return false
	}
	p.CloseAsync()
	return true
}

// Sweep evicts and closes pools that have been inactive for longer than
// idleThreshold and have no acquired connections or queued waiters. It
// returns the number of pools evicted.
func (m *PoolMap) Sweep(idleThreshold time.Duration) int {
	now := time.Now()

	m.mu.Lock()
	var victims []*FixedPool
	for ep, p := range m.pools {
		if p.AcquiredCount() != 0 || p.PendingCount() != 0 {
			continue
		}
		if now.Sub(p.LastActiveTime()) < idleThreshold {
			continue
		}
		delete(m.pools, ep)
		victims = append(victims, p)
	}
	m.mu.Unlock()

	for _, p := range victims {
		p.CloseAsync()
	}
	return len(victims)
}

// Len returns the number of pools in the map.
func (m *PoolMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// Each calls fn for a snapshot of the map's pools.
func (m *PoolMap) Each(fn func(Endpoint, *FixedPool)) {
	m.mu.RLock()
	pools := make(map[Endpoint]*FixedPool, len(m.pools))
	for ep, p := range m.pools {
		pools[ep] = p
	}
	m.mu.RUnlock()

	for ep, p := range pools {
		fn(ep, p)
	}
}

// Close evicts every pool and closes them concurrently, returning the
// first teardown error.
func (m *PoolMap) Close() error {
	m.mu.Lock()
	pools := make([]*FixedPool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.pools = make(map[Endpoint]*FixedPool)
	m.mu.Unlock()

	var g errgroup.Group
	for _, p := range pools {
		g.Go(p.Close)
	}
	return g.Wait()
}
