package transport

import (
	"errors"
	"fmt"

	"gopkg.in/fatih/pool.v2"
)

var (
	// ErrPoolClosed is returned when acquiring from, or releasing to, a
	// closed pool.
	ErrPoolClosed = pool.ErrClosed

	// ErrTooManyOutstanding is returned from an acquire when the pool is
	// at capacity and the pending queue is full.
	ErrTooManyOutstanding = errors.New("too many outstanding acquire operations")

	// ErrAcquireTimeout is returned when a queued acquire outlives the
	// configured timeout in fail mode.
	ErrAcquireTimeout = errors.New("acquire operation took longer than the configured maximum time")

	// ErrWrongPool is returned when a connection is handed back to a pool
	// that did not create it. The pool's counters are left untouched.
	ErrWrongPool = errors.New("connection does not belong to this pool")

	// ErrNotAcquired is returned when releasing a connection that is not
	// currently held by a caller.
	ErrNotAcquired = errors.New("connection is not acquired")

	// ErrUnhealthyConn is returned when a freshly established connection
	// fails the health check before it could be handed out.
	ErrUnhealthyConn = errors.New("connection failed health check")

	// ErrInvalidConfig is returned at construction for invalid pool
	// settings.
	ErrInvalidConfig = errors.New("invalid pool configuration")
)

// ConnectError wraps a connector failure with the endpoint it targeted.
type ConnectError struct {
	Endpoint Endpoint
	Err      error
}

// Error implements error.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s", e.Endpoint, e.Err)
}

// Unwrap returns the connector's failure.
func (e *ConnectError) Unwrap() error { return e.Err }
