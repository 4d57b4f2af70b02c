package tcp_test

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/teleinfo-cn/idpointer/tcp"
)

func TestDialer_WritesHeader(t *testing.T) {
	payload := []byte("resolve 88.111/test")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer l.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := l.Accept()
		if err != nil {
			t.Errorf("error accepting tcp connection: %s", err)
			return
		}
		defer conn.Close()

		buf := &bytes.Buffer{}
		if _, err = io.Copy(buf, conn); err != nil {
			t.Errorf("error copying tcp connection: %s", err)
			return
		}

		want := append([]byte{0x49}, payload...)
		if !bytes.Equal(buf.Bytes(), want) {
			t.Errorf("unexpected payload: %q", buf.String())
		}
	}()

	d := tcp.Dialer{Timeout: time.Second, Header: 0x49}
	conn, err := d.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	conn.Write(payload)
	conn.Close()

	timer := time.NewTimer(100 * time.Millisecond)
	select {
	case <-done:
		timer.Stop()
	case <-timer.C:
		t.Errorf("timeout while waiting for the goroutine")
	}
}

func TestDialer_Refused(t *testing.T) {
	// Grab a free port and close the listener so the dial is refused.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	addr := l.Addr().String()
	l.Close()

	d := tcp.Dialer{Timeout: 100 * time.Millisecond}
	if _, err := d.Dial("tcp", addr); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestClientTLS(t *testing.T) {
	if cfg := tcp.ClientTLS(false, false); cfg != nil {
		t.Fatal("expected nil config for plain TCP")
	}
	cfg := tcp.ClientTLS(true, true)
	if cfg == nil || !cfg.InsecureSkipVerify {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
