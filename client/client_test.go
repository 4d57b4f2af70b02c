package client_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teleinfo-cn/idpointer/client"
	"github.com/teleinfo-cn/idpointer/protocol"
	"github.com/teleinfo-cn/idpointer/security"
)

// testServer is a minimal identifier server speaking the wire protocol
// over a loopback listener.
type testServer struct {
	t  *testing.T
	ln net.Listener

	mu          sync.Mutex
	identifiers map[string][]protocol.Value
	pubKeys     map[string]*rsa.PublicKey

	accepted    int32
	nextSession uint32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &testServer{
		t:           t,
		ln:          ln,
		identifiers: make(map[string][]protocol.Value),
		pubKeys:     make(map[string]*rsa.PublicKey),
	}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *testServer) addr() string { return s.ln.Addr().String() }

func (s *testServer) accepts() int { return int(atomic.LoadInt32(&s.accepted)) }

func (s *testServer) register(id string, values ...protocol.Value) {
	s.mu.Lock()
	s.identifiers[id] = values
	s.mu.Unlock()
}

func (s *testServer) registerKey(user string, pub *rsa.PublicKey) {
	s.mu.Lock()
	s.pubKeys[user] = pub
	s.mu.Unlock()
}

func (s *testServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		atomic.AddInt32(&s.accepted, 1)
		go s.handle(conn)
	}
}

func (s *testServer) handle(conn net.Conn) {
	defer conn.Close()

	var header [1]byte
	if _, err := conn.Read(header[:]); err != nil || header[0] != protocol.StreamHeader {
		return
	}

	var nonce []byte
	var session uint32
	for {
		req, err := protocol.ReadMessage(conn)
		if err != nil {
			return
		}

		resp := &protocol.Message{Envelope: protocol.Envelope{
			Version:      protocol.Version,
			OpCode:       req.OpCode,
			ResponseCode: protocol.RCSuccess,
			SessionID:    session,
			RequestID:    req.RequestID,
		}}

		switch req.OpCode {
		case protocol.OpPing:

		case protocol.OpResolution:
			var rr protocol.ResolutionRequest
			if err := req.DecodeBody(&rr); err != nil {
				return
			}
			s.mu.Lock()
			values, ok := s.identifiers[rr.Identifier]
			s.mu.Unlock()
			if !ok {
				s.fail(resp, protocol.RCNotFound, "no such identifier")
				break
			}
			body, err := (&protocol.ResolutionResponse{Identifier: rr.Identifier, Values: values}).MarshalBinary()
			if err != nil {
				return
			}
			resp.Body = body

		case protocol.OpChallenge:
			nonce = make([]byte, 32)
			rand.Read(nonce)
			body, err := (&protocol.ChallengeResponse{Nonce: nonce}).MarshalBinary()
			if err != nil {
				return
			}
			resp.Body = body

		case protocol.OpLogin:
			var lr protocol.LoginRequest
			if err := req.DecodeBody(&lr); err != nil {
				return
			}
			s.mu.Lock()
			pub := s.pubKeys[lr.UserIdentifier]
			s.mu.Unlock()
			if pub == nil || nonce == nil || !security.Verify(nonce, pub, lr.Signature) {
				s.fail(resp, protocol.RCAuthFailed, "bad signature")
				break
			}
			session = atomic.AddUint32(&s.nextSession, 1)
			resp.SessionID = session

		case protocol.OpLogout:
			session = 0
			resp.SessionID = 0

		default:
			s.fail(resp, protocol.RCError, "unknown operation")
		}

		if err := protocol.WriteMessage(conn, resp); err != nil {
			return
		}
	}
}

func (s *testServer) fail(resp *protocol.Message, code uint32, msg string) {
	resp.ResponseCode = code
	body, err := (&protocol.ErrorResponse{Message: msg}).MarshalBinary()
	if err != nil {
		s.t.Error(err)
		return
	}
	resp.Body = body
}

func newTestFactory(t *testing.T, server string) *client.Factory {
	t.Helper()
	c := client.NewConfig()
	c.Server = server
	c.MaxRetries = 1

	f, err := client.NewFactory(c)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := f.Open(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestClient_Resolve(t *testing.T) {
	s := newTestServer(t)
	s.register("88.111/repo.dataset-7",
		protocol.Value{Index: 1, Type: "URL", Data: []byte("https://repo.example.cn/d/7"), TTL: 86400},
	)

	f := newTestFactory(t, s.addr())
	c, err := f.NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	values, err := c.Resolve(context.Background(), "88.111/repo.dataset-7")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(values) != 1 || string(values[0].Data) != "https://repo.example.cn/d/7" {
		t.Fatalf("unexpected values: %+v", values)
	}

	if _, err := c.Resolve(context.Background(), "88.111/missing"); err == nil || !strings.Contains(err.Error(), "identifier not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestClient_Ping(t *testing.T) {
	s := newTestServer(t)
	f := newTestFactory(t, s.addr())
	c, err := f.NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestClient_ResolveBatch(t *testing.T) {
	s := newTestServer(t)
	ids := []string{"88.111/a", "88.111/b", "88.111/c"}
	for _, id := range ids {
		s.register(id, protocol.Value{Index: 1, Type: "URL", Data: []byte("https://" + id)})
	}

	f := newTestFactory(t, s.addr())
	c, err := f.NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	got, err := c.ResolveBatch(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for _, id := range ids {
		values := got[id]
		if len(values) != 1 || string(values[0].Data) != "https://"+id {
			t.Fatalf("%s: unexpected values: %+v", id, values)
		}
	}
}

func TestClient_ReusesPooledConnections(t *testing.T) {
	s := newTestServer(t)
	s.register("88.111/x", protocol.Value{Index: 1, Type: "URL", Data: []byte("u")})

	f := newTestFactory(t, s.addr())
	c, err := f.NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := c.Resolve(context.Background(), "88.111/x"); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}
	if got := s.accepts(); got != 1 {
		t.Fatalf("expected 1 accepted connection, got %d", got)
	}
}

func TestClient_LoginLogout(t *testing.T) {
	s := newTestServer(t)
	key, err := security.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	s.registerKey("88.111.admin/admin", &key.PublicKey)

	f := newTestFactory(t, s.addr())
	id := &client.Identity{Identifier: "88.111.admin/admin", Index: 300, PrivateKey: key}
	c, err := f.NewAuthenticatedClient(s.addr(), id)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.SessionID() == 0 {
		t.Fatal("expected an authenticated session")
	}

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.SessionID() != 0 {
		t.Fatal("expected the session to be released")
	}
}

func TestClient_LoginBadKey(t *testing.T) {
	s := newTestServer(t)
	good, err := security.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	s.registerKey("88.111.admin/admin", &good.PublicKey)

	wrong, err := security.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	f := newTestFactory(t, s.addr())
	c, err := f.NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	id := &client.Identity{Identifier: "88.111.admin/admin", Index: 300, PrivateKey: wrong}
	if err := c.Login(context.Background(), id); err == nil || !strings.Contains(err.Error(), "authentication failed") {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestClient_DialFailure(t *testing.T) {
	// A listener that is immediately closed yields a refused port.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	f := newTestFactory(t, addr)
	c, err := f.NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err == nil {
		t.Fatal("expected dial failure")
	}
}
