package transport

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teleinfo-cn/idpointer/tcp"
)

// Manager owns the per-endpoint pool map and its lifecycle: it builds
// pools on demand from the configuration and sweeps the ones that fall
// idle.
type Manager struct {
	// Connect overrides how new connections are established. When nil,
	// the manager dials TCP (optionally TLS) with the configured dial
	// timeout.
	Connect ConnectFunc

	// HealthCheck overrides the health predicate applied to pooled
	// connections. Defaults to ActiveHealthCheck.
	HealthCheck HealthCheckFunc

	// Handler observes connection state transitions in every pool.
	Handler Handler

	// TLSConfig enables TLS on the default dialer.
	TLSConfig *tls.Config

	config Config

	mu     sync.Mutex
	wg     sync.WaitGroup
	done   chan struct{}
	pools  *PoolMap
	logger *zap.Logger
}

// NewManager returns a manager with the given configuration.
func NewManager(c Config) *Manager {
	m := &Manager{
		config: c,
		logger: zap.NewNop(),
	}
	m.pools = NewPoolMap(m.newPool)
	return m
}

// WithLogger sets the logger on the manager.
func (m *Manager) WithLogger(log *zap.Logger) {
	m.logger = log.With(zap.String("service", "transport"))
}

// Open validates the configuration and starts the idle-pool sweeper.
func (m *Manager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil {
		return nil
	}
	if err := m.config.Validate(); err != nil {
		return err
	}

	m.logger.Info("Opening connection pool manager",
		zap.Int("max_connections", m.config.MaxConnections),
		zap.Duration("pool_idle_time", time.Duration(m.config.PoolIdleTime)))

	m.done = make(chan struct{})
	m.wg.Add(1)
	go func(done chan struct{}) { defer m.wg.Done(); m.run(done) }(m.done)
	return nil
}

// Close stops the sweeper and closes every pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.done == nil {
		m.mu.Unlock()
		return nil
	}
	m.logger.Info("Closing connection pool manager")
	close(m.done)
	m.done = nil
	m.mu.Unlock()

	m.wg.Wait()
	return m.pools.Close()
}

// Pool returns the pool for ep, creating it on first use.
func (m *Manager) Pool(ep Endpoint) (*FixedPool, error) {
	return m.pools.Get(ep)
}

// Pools returns the underlying pool map.
func (m *Manager) Pools() *PoolMap { return m.pools }

func (m *Manager) run(done chan struct{}) {
	interval := time.Duration(m.config.SweepInterval)
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n := m.pools.Sweep(time.Duration(m.config.PoolIdleTime)); n > 0 {
				m.logger.Info("Swept idle endpoint pools", zap.Int("pools", n))
			}
		}
	}
}

func (m *Manager) newPool(ep Endpoint) (*FixedPool, error) {
	connect := m.Connect
	if connect == nil {
		dialer := tcp.Dialer{
			Timeout: time.Duration(m.config.DialTimeout),
			TLS:     m.TLSConfig,
		}
		connect = func(ep Endpoint) (net.Conn, error) {
			return dialer.Dial("tcp", ep.String())
		}
	}

	opts, err := m.config.poolOptions(connect)
	if err != nil {
		return nil, err
	}
	opts.HealthCheck = m.HealthCheck
	opts.Handler = m.Handler
	return NewFixedPool(ep, opts)
}
