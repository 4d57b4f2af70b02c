package client

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teleinfo-cn/idpointer/protocol"
	"github.com/teleinfo-cn/idpointer/tcp"
	"github.com/teleinfo-cn/idpointer/transport"
)

// Factory hands out clients that share one pool manager, so clients for
// the same server reuse the same connections.
type Factory struct {
	config  Config
	manager *transport.Manager
	logger  *zap.Logger

	mu     sync.Mutex
	opened bool
}

// NewFactory returns a factory for the given configuration.
func NewFactory(c Config) (*Factory, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	m := transport.NewManager(c.Transport)
	dialer := tcp.Dialer{
		Timeout: time.Duration(c.Transport.DialTimeout),
		TLS:     tcp.ClientTLS(c.UseTLS, c.InsecureTLS),
		Header:  protocol.StreamHeader,
	}
	m.Connect = func(ep transport.Endpoint) (net.Conn, error) {
		return dialer.Dial("tcp", ep.String())
	}
	return &Factory{
		config:  c,
		manager: m,
		logger:  zap.NewNop(),
	}, nil
}

// WithLogger sets the logger on the factory and its pool manager.
func (f *Factory) WithLogger(log *zap.Logger) {
	f.logger = log
	f.manager.WithLogger(log)
}

// Open starts the shared pool manager.
func (f *Factory) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opened {
		return nil
	}
	if err := f.manager.Open(); err != nil {
		return err
	}
	f.opened = true
	return nil
}

// Close shuts the shared pool manager down, closing every pooled
// connection.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.opened {
		return nil
	}
	f.opened = false
	return f.manager.Close()
}

// Manager returns the shared pool manager.
func (f *Factory) Manager() *transport.Manager { return f.manager }

// NewClient returns a client for the configured default server.
func (f *Factory) NewClient() (*Client, error) {
	return f.NewClientFor(f.config.Server)
}

// NewClientFor returns a client for the given server address.
func (f *Factory) NewClientFor(server string) (*Client, error) {
	c, err := NewClient(server, f.manager, f.config)
	if err != nil {
		return nil, err
	}
	c.WithLogger(f.logger)
	return c, nil
}

// NewAuthenticatedClient returns a client for the given server that has
// logged in as id.
func (f *Factory) NewAuthenticatedClient(server string, id *Identity) (*Client, error) {
	c, err := f.NewClientFor(server)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if timeout := time.Duration(f.config.RequestTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.Login(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}
