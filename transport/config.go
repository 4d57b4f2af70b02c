// Package transport maintains pools of long-lived connections to identifier
// servers. Each remote endpoint gets a fixed-capacity pool that arbitrates
// access among concurrent callers with FIFO fairness, acquire timeouts, and
// health-checked reuse; a manager materialises pools lazily per endpoint and
// sweeps the ones that fall idle.
package transport // import "github.com/teleinfo-cn/idpointer/transport"

import (
	"fmt"
	"time"

	"github.com/teleinfo-cn/idpointer/toml"
)

const (
	// DefaultMaxConnections is the maximum number of connections a pool
	// hands out concurrently per endpoint.
	DefaultMaxConnections = 4

	// DefaultMaxPendingAcquires is the maximum number of callers allowed
	// to wait for a connection once a pool is at capacity.
	DefaultMaxPendingAcquires = 10000

	// DefaultAcquireTimeout is the duration a queued caller waits before
	// the timeout action runs.
	DefaultAcquireTimeout = 5 * time.Second

	// DefaultDialTimeout is the duration the default connector waits for
	// a TCP connection to an identifier server.
	DefaultDialTimeout = 5 * time.Second

	// DefaultPoolIdleTime is how long an endpoint pool may sit unused
	// before the sweeper closes it.
	DefaultPoolIdleTime = time.Minute

	// DefaultSweepInterval is how often the manager looks for idle pools.
	DefaultSweepInterval = 30 * time.Second
)

// AcquireTimeoutAction selects what happens to a queued acquire whose
// deadline elapses.
type AcquireTimeoutAction int

const (
	// TimeoutNone disables acquire timeouts entirely.
	TimeoutNone AcquireTimeoutAction = iota

	// TimeoutFail completes the caller with ErrAcquireTimeout.
	TimeoutFail

	// TimeoutNew creates a new connection for the caller, deliberately
	// letting the pool exceed its capacity under sustained contention.
	TimeoutNew
)

// String returns the configuration name of the action.
func (a AcquireTimeoutAction) String() string {
	switch a {
	case TimeoutNone:
		return "none"
	case TimeoutFail:
		return "fail"
	case TimeoutNew:
		return "new"
	default:
		return fmt.Sprintf("AcquireTimeoutAction(%d)", int(a))
	}
}

// ParseAcquireTimeoutAction parses a configuration string into an action.
func ParseAcquireTimeoutAction(s string) (AcquireTimeoutAction, error) {
	switch s {
	case "", "none":
		return TimeoutNone, nil
	case "fail":
		return TimeoutFail, nil
	case "new":
		return TimeoutNew, nil
	default:
		return TimeoutNone, fmt.Errorf("%w: unknown acquire-timeout-action %q", ErrInvalidConfig, s)
	}
}

// SelectionOrder selects which idle connection a pool reuses first.
type SelectionOrder int

const (
	// SelectLIFO reuses the most recently returned connection.
	SelectLIFO SelectionOrder = iota

	// SelectFIFO reuses the oldest idle connection.
	SelectFIFO
)

// String returns the configuration name of the order.
func (o SelectionOrder) String() string {
	if o == SelectFIFO {
		return "fifo"
	}
	return "lifo"
}

// ParseSelectionOrder parses a configuration string into a selection order.
func ParseSelectionOrder(s string) (SelectionOrder, error) {
	switch s {
	case "", "lifo":
		return SelectLIFO, nil
	case "fifo":
		return SelectFIFO, nil
	default:
		return SelectLIFO, fmt.Errorf("%w: unknown selection-order %q", ErrInvalidConfig, s)
	}
}

// Config represents the configuration for the transport manager and the
// pools it creates.
type Config struct {
	MaxConnections       int           `toml:"max-connections"`
	MaxPendingAcquires   int           `toml:"max-pending-acquires"`
	AcquireTimeout       toml.Duration `toml:"acquire-timeout"`
	AcquireTimeoutAction string        `toml:"acquire-timeout-action"`
	ReleaseHealthCheck   bool          `toml:"release-health-check"`
	SelectionOrder       string        `toml:"selection-order"`
	DialTimeout          toml.Duration `toml:"dial-timeout"`
	PoolIdleTime         toml.Duration `toml:"pool-idle-time"`
	SweepInterval        toml.Duration `toml:"sweep-interval"`
}

// NewConfig returns a new Config with defaults.
func NewConfig() Config {
	return Config{
		MaxConnections:       DefaultMaxConnections,
		MaxPendingAcquires:   DefaultMaxPendingAcquires,
		AcquireTimeout:       toml.Duration(DefaultAcquireTimeout),
		AcquireTimeoutAction: "fail",
		ReleaseHealthCheck:   true,
		SelectionOrder:       "lifo",
		DialTimeout:          toml.Duration(DefaultDialTimeout),
		PoolIdleTime:         toml.Duration(DefaultPoolIdleTime),
		SweepInterval:        toml.Duration(DefaultSweepInterval),
	}
}

// Validate returns an error if the config is invalid.
func (c Config) Validate() error {
	opts, err := c.poolOptions(nil)
	if err != nil {
		return err
	}
	return opts.validate()
}

// poolOptions translates the config into options for one pool.
func (c Config) poolOptions(connect ConnectFunc) (PoolOptions, error) {
	action, err := ParseAcquireTimeoutAction(c.AcquireTimeoutAction)
	if err != nil {
		return PoolOptions{}, err
	}
	order, err := ParseSelectionOrder(c.SelectionOrder)
	if err != nil {
		return PoolOptions{}, err
	}

	timeout := time.Duration(c.AcquireTimeout)
	if action == TimeoutNone {
		timeout = -1
	}

	return PoolOptions{
		Connect:            connect,
		MaxConnections:     c.MaxConnections,
		MaxPendingAcquires: c.MaxPendingAcquires,
		AcquireTimeout:     timeout,
		TimeoutAction:      action,
		ReleaseHealthCheck: c.ReleaseHealthCheck,
		SelectionOrder:     order,
	}, nil
}

// PoolOptions configures one FixedPool.
type PoolOptions struct {
	// Connect establishes new connections. Required.
	Connect ConnectFunc

	// HealthCheck decides whether a connection is usable. Defaults to
	// ActiveHealthCheck.
	HealthCheck HealthCheckFunc

	// Handler observes connection state transitions. Defaults to
	// NopHandler.
	Handler Handler

	// MaxConnections caps concurrently acquired connections. Must be
	// positive.
	MaxConnections int

	// MaxPendingAcquires caps queued waiters. Must be positive.
	MaxPendingAcquires int

	// AcquireTimeout bounds how long a waiter stays queued. Negative
	// disables timeouts, and so does zero when TimeoutAction is
	// TimeoutNone; a positive value is rejected without a TimeoutAction.
	AcquireTimeout time.Duration

	// TimeoutAction runs when a waiter's deadline elapses.
	TimeoutAction AcquireTimeoutAction

	// ReleaseHealthCheck re-checks connections as they come back.
	ReleaseHealthCheck bool

	// SelectionOrder picks which idle connection is reused first.
	SelectionOrder SelectionOrder
}

func (o PoolOptions) validate() error {
	if o.MaxConnections < 1 {
		return fmt.Errorf("%w: max-connections must be positive, got %d", ErrInvalidConfig, o.MaxConnections)
	}
	if o.MaxPendingAcquires < 1 {
		return fmt.Errorf("%w: max-pending-acquires must be positive, got %d", ErrInvalidConfig, o.MaxPendingAcquires)
	}
	if o.TimeoutAction == TimeoutNone && o.AcquireTimeout > 0 {
		return fmt.Errorf("%w: acquire-timeout set without an acquire-timeout-action", ErrInvalidConfig)
	}
	if o.TimeoutAction != TimeoutNone && o.AcquireTimeout < 0 {
		return fmt.Errorf("%w: acquire-timeout-action %q requires a non-negative acquire-timeout", ErrInvalidConfig, o.TimeoutAction)
	}
	return nil
}
