package client

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teleinfo-cn/idpointer/protocol"
	"github.com/teleinfo-cn/idpointer/transport"
)

// Client resolves identifiers against one server, multiplexing its
// requests over the server's connection pool. A Client is safe for
// concurrent use.
type Client struct {
	endpoint transport.Endpoint
	manager  *transport.Manager
	config   Config
	limiter  *rate.Limiter
	logger   *zap.Logger

	requestID uint32
	sessionID uint32
}

// NewClient returns a client for the given server address, pooling its
// connections through manager. The manager must be open and stays owned by
// the caller; closing the client does not close it.
func NewClient(server string, manager *transport.Manager, c Config) (*Client, error) {
	ep, err := transport.ResolveEndpoint(server)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if c.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.RateLimit), c.RateBurst)
	}

	return &Client{
		endpoint: ep,
		manager:  manager,
		config:   c,
		limiter:  limiter,
		logger:   zap.NewNop(),
	}, nil
}

// WithLogger sets the logger on the client.
func (c *Client) WithLogger(log *zap.Logger) {
	c.logger = log.With(zap.String("service", "client"), zap.Stringer("endpoint", c.endpoint))
}

// Endpoint returns the resolved server address.
func (c *Client) Endpoint() transport.Endpoint { return c.endpoint }

// SessionID returns the authenticated session, or zero when logged out.
func (c *Client) SessionID() uint32 {
	return atomic.LoadUint32(&c.sessionID)
}

// Resolve returns the values of an identifier.
func (c *Client) Resolve(ctx context.Context, identifier string) ([]protocol.Value, error) {
	return c.ResolveFiltered(ctx, identifier, nil, nil)
}

// ResolveFiltered returns the values of an identifier restricted to the
// given types and indexes. Nil filters return everything.
func (c *Client) ResolveFiltered(ctx context.Context, identifier string, types []string, indexes []uint32) ([]protocol.Value, error) {
	req := &protocol.ResolutionRequest{Identifier: identifier, Types: types, Indexes: indexes}
	m, err := c.roundTrip(ctx, protocol.OpResolution, req)
	if err != nil {
		return nil, err
	}

	var resp protocol.ResolutionResponse
	if err := m.DecodeBody(&resp); err != nil {
		return nil, fmt.Errorf("decode resolution response: %w", err)
	}
	return resp.Values, nil
}

// ResolveBatch resolves several identifiers concurrently and returns the
// values keyed by identifier. The first failure cancels the remaining
// lookups.
func (c *Client) ResolveBatch(ctx context.Context, identifiers []string) (map[string][]protocol.Value, error) {
	results := make([][]protocol.Value, len(identifiers))

	g, ctx := errgroup.WithContext(ctx)
	if limit := c.config.Transport.MaxConnections; limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range identifiers {
		i, id := i, id
		g.Go(func() error {
			values, err := c.Resolve(ctx, id)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", id, err)
			}
			results[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]protocol.Value, len(identifiers))
	for i, id := range identifiers {
		out[id] = results[i]
	}
	return out, nil
}

// Ping checks that the server is reachable and answering.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, protocol.OpPing, nil)
	return err
}

// Close releases the client's session if one is active. The underlying
// pools belong to the manager and stay up for other clients.
func (c *Client) Close() error {
	if c.SessionID() == 0 {
		return nil
	}
	ctx := context.Background()
	if timeout := time.Duration(c.config.RequestTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Logout(ctx)
}

// roundTrip performs one request/response exchange on a pooled connection.
// Dial failures are retried with exponential backoff; transport errors on
// an established connection poison it so the pool discards it.
func (c *Client) roundTrip(ctx context.Context, opCode uint32, body encoding.BinaryMarshaler) (*protocol.Message, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	env := protocol.Envelope{
		OpCode:    opCode,
		SessionID: c.SessionID(),
		RequestID: atomic.AddUint32(&c.requestID, 1),
	}
	req, err := protocol.EncodeMessage(env, body)
	if err != nil {
		return nil, err
	}

	var resp *protocol.Message
	operation := func() error {
		resp, err = c.exchange(ctx, req)
		if err == nil {
			return nil
		}
		// Only dial failures are worth retrying; everything else is
		// either permanent or already consumed protocol state.
		var ce *transport.ConnectError
		if errors.As(err, &ce) {
			c.logger.Debug("Retrying after failed dial", zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	if err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.config.MaxRetries)), ctx)); err != nil {
		return nil, err
	}

	if resp.ResponseCode != protocol.RCSuccess {
		return nil, protocol.ResponseError(resp)
	}
	return resp, nil
}

// exchange writes one request and reads its response on a connection
// acquired from the pool.
func (c *Client) exchange(ctx context.Context, req *protocol.Message) (*protocol.Message, error) {
	pool, err := c.manager.Pool(c.endpoint)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if timeout := time.Duration(c.config.RequestTimeout); timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := protocol.WriteMessage(conn, req); err != nil {
		pool.Discard(conn)
		return nil, err
	}
	resp, err := protocol.ReadMessage(conn)
	if err != nil {
		pool.Discard(conn)
		return nil, err
	}
	if resp.RequestID != req.RequestID {
		// The stream is out of step; it cannot be reused.
		pool.Discard(conn)
		return nil, fmt.Errorf("response for request %d arrived on request %d", resp.RequestID, req.RequestID)
	}

	conn.SetDeadline(time.Time{})
	if err := pool.Release(conn); err != nil && !errors.Is(err, transport.ErrPoolClosed) {
		c.logger.Warn("Failed to release connection", zap.Error(err))
	}
	return resp, nil
}
