package transport

import (
	"container/list"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
)

// Endpoint is a resolved remote address. It is comparable, so two endpoints
// are equal exactly when their address bytes and ports are equal.
type Endpoint = netip.AddrPort

// ResolveEndpoint resolves a "host:port" string to an Endpoint. Hostnames
// are looked up and the first address wins.
func ResolveEndpoint(address string) (Endpoint, error) {
	if ep, err := netip.ParseAddrPort(address); err == nil {
		return ep, nil
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return Endpoint{}, fmt.Errorf("resolve endpoint %q: %w", address, err)
	}
	addr, ok := netip.AddrFromSlice(tcpAddr.IP)
	if !ok {
		return Endpoint{}, fmt.Errorf("resolve endpoint %q: invalid address", address)
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(tcpAddr.Port)), nil
}

// ConnState is the ownership state of a pooled connection.
type ConnState int32

const (
	// StateAcquired means a caller currently holds the connection.
	StateAcquired ConnState = iota

	// StateIdle means the connection rests in its pool's idle reservoir.
	StateIdle

	// StateClosed is terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateAcquired:
		return "acquired"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// nextConnID assigns monotonically increasing connection identities.
var nextConnID uint64

// Conn is one pooled connection to an identifier server. It embeds the
// transport stream, so callers read and write it directly. Do not call the
// embedded Close; hand the connection back with FixedPool.Release or
// FixedPool.Discard.
type Conn struct {
	net.Conn

	id   uint64
	pool *FixedPool

	// state is mutated on the owning pool's dispatcher, and by the paths
	// that close the connection once the pool has shut down. It is
	// accessed atomically and may be read from any goroutine.
	state int32

	// idleElem is the connection's slot in the idle reservoir. Owned by
	// the dispatcher.
	idleElem *list.Element
}

func newConn(p *FixedPool, nc net.Conn) *Conn {
	return &Conn{
		Conn:  nc,
		id:    atomic.AddUint64(&nextConnID, 1),
		pool:  p,
		state: int32(StateAcquired),
	}
}

// ID returns the connection's pool-assigned identity.
func (c *Conn) ID() uint64 { return c.id }

// State returns the connection's ownership state.
func (c *Conn) State() ConnState {
	return ConnState(atomic.LoadInt32(&c.state))
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool { return c.State() == StateClosed }

func (c *Conn) setState(s ConnState) {
	atomic.StoreInt32(&c.state, int32(s))
}

// closeTransport tears the underlying stream down and marks the connection
// closed. The closed state is terminal.
func (c *Conn) closeTransport() {
	if c.State() == StateClosed {
		return
	}
	c.setState(StateClosed)
	c.Conn.Close()
}

// ConnectFunc establishes one new transport connection to an endpoint. It
// is stateless and performs no retries; the pool invokes it off the
// dispatcher and trampolines the completion back.
type ConnectFunc func(Endpoint) (net.Conn, error)

// HealthCheckFunc reports whether a connection is still usable. It must be
// cheap and synchronous; the pool treats the verdict as authoritative.
type HealthCheckFunc func(*Conn) bool

// ActiveHealthCheck accepts any connection that has not been torn down.
func ActiveHealthCheck(c *Conn) bool { return !c.Closed() }

// Handler is notified of connection state transitions. ConnCreated fires
// once before the connection's first ConnAcquired; ConnAcquired and
// ConnReleased alternate strictly per connection. Callbacks run on the
// pool's dispatcher and must not block.
type Handler interface {
	ConnCreated(*Conn)
	ConnAcquired(*Conn)
	ConnReleased(*Conn)
}

// NopHandler is a Handler that does nothing.
type NopHandler struct{}

// ConnCreated implements Handler.
func (NopHandler) ConnCreated(*Conn) {}

// ConnAcquired implements Handler.
func (NopHandler) ConnAcquired(*Conn) {}

// ConnReleased implements Handler.
func (NopHandler) ConnReleased(*Conn) {}
