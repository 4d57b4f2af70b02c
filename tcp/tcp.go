// Package tcp dials identifier servers.
package tcp // import "github.com/teleinfo-cn/idpointer/tcp"

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// Dialer opens transport streams to identifier servers. A zero Dialer
// dials plain TCP with no timeout. When TLS is set the stream is wrapped
// in it, and when Header is nonzero the byte is written first so the
// server can route the stream before any message arrives.
type Dialer struct {
	Timeout time.Duration
	TLS     *tls.Config
	Header  byte
}

// Dial opens one stream to address.
func (d Dialer) Dial(network, address string) (net.Conn, error) {
	var conn net.Conn
	var err error
	if d.TLS != nil {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: d.Timeout}, network, address, d.TLS)
	} else {
		conn, err = net.DialTimeout(network, address, d.Timeout)
	}
	if err != nil {
		return nil, err
	}

	if d.Header != 0 {
		if _, err := conn.Write([]byte{d.Header}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("write stream header: %w", err)
		}
	}
	return conn, nil
}

// ClientTLS returns the TLS config for client streams, or nil for plain
// TCP. skipVerify disables certificate verification.
func ClientTLS(useTLS, skipVerify bool) *tls.Config {
	if !useTLS {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: skipVerify}
}
