package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teleinfo-cn/idpointer/toml"
)

func newTestManager(t *testing.T, c Config) (*Manager, *testConnector) {
	t.Helper()
	tc := &testConnector{}
	m := NewManager(c)
	m.Connect = tc.connect
	if err := m.Open(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, tc
}

func TestManager_OpenClose(t *testing.T) {
	m, _ := newTestManager(t, NewConfig())

	// Open is idempotent.
	if err := m.Open(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestManager_OpenValidatesConfig(t *testing.T) {
	c := NewConfig()
	c.MaxConnections = 0
	m := NewManager(c)
	if err := m.Open(); err == nil {
		t.Fatal("expected invalid config error")
	}
}

func TestManager_PoolRoundTrip(t *testing.T) {
	m, tc := newTestManager(t, NewConfig())

	p, err := m.Pool(testEndpoint)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if tc.dialCount() != 1 {
		t.Fatalf("expected 1 dial, got %d", tc.dialCount())
	}
	if err := p.Release(c); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestManager_SweepsIdlePools(t *testing.T) {
	c := NewConfig()
	c.SweepInterval = toml.Duration(10 * time.Millisecond)
	c.PoolIdleTime = toml.Duration(10 * time.Millisecond)
	m, _ := newTestManager(t, c)

	p, err := m.Pool(testEndpoint)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	waitFor(t, "idle pool to be swept", func() bool {
		return p.Closed() && m.Pools().Len() == 0
	})

	// A later lookup materialises a fresh pool.
	fresh, err := m.Pool(testEndpoint)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if fresh == p || fresh.Closed() {
		t.Fatal("expected a fresh open pool after the sweep")
	}
}

func TestManager_DefaultDialer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	m := NewManager(NewConfig())
	if err := m.Open(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer m.Close()

	ep, err := ResolveEndpoint(l.Addr().String())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	p, err := m.Pool(ep)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	p.Release(c)
}

func TestPoolStatistics_Collect(t *testing.T) {
	m, _ := newTestManager(t, NewConfig())
	stats := NewPoolStatistics(m)

	p, err := m.Pool(testEndpoint)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	// One endpoint, three gauges.
	if got := testutil.CollectAndCount(stats); got != 3 {
		t.Fatalf("expected 3 metrics, got %d", got)
	}

	p.Release(c)
}
