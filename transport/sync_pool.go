package transport

import (
	"context"
	"net"
	"sync"

	"gopkg.in/fatih/pool.v2"
)

// SyncPool exposes a FixedPool through the blocking pool.Pool interface:
// Get hands out a net.Conn whose Close returns it to the pool. Callers
// that hit a transport error mark the connection unusable first so the
// pool discards it instead.
type SyncPool struct {
	p *FixedPool
}

var _ pool.Pool = (*SyncPool)(nil)

// NewSyncPool wraps p.
func NewSyncPool(p *FixedPool) *SyncPool {
	return &SyncPool{p: p}
}

// Get implements pool.Pool.
func (sp *SyncPool) Get() (net.Conn, error) {
	c, err := sp.p.Acquire(context.Background())
	if err != nil {
		return nil, err
	}
	return &PooledConn{Conn: c}, nil
}

// Close implements pool.Pool, closing the underlying fixed pool.
func (sp *SyncPool) Close() {
	sp.p.Close()
}

// Len implements pool.Pool, returning the number of idle connections.
func (sp *SyncPool) Len() int {
	return sp.p.IdleCount()
}

// PooledConn is a net.Conn whose Close hands the connection back to its
// pool instead of closing it.
type PooledConn struct {
	*Conn
	mu       sync.RWMutex
	unusable bool
}

// Close returns the connection to its pool, or discards it when marked
// unusable. Closing twice releases only once.
func (c *PooledConn) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.unusable {
		return c.Conn.pool.Discard(c.Conn)
	}
	return c.Conn.pool.Release(c.Conn)
}

// MarkUnusable marks the connection so Close discards it instead of
// returning it to the pool.
func (c *PooledConn) MarkUnusable() {
	c.mu.Lock()
	c.unusable = true
	c.mu.Unlock()
}

// MarkUnusable flags conn for discard if it is a pool-managed connection.
func MarkUnusable(conn net.Conn) {
	if pc, ok := conn.(*PooledConn); ok {
		pc.MarkUnusable()
	}
}
