// Package protocol implements the binary wire protocol spoken between
// identifier clients and identifier servers. Every exchange is a framed
// message: a fixed envelope identifying the operation, followed by a
// length-prefixed body whose layout depends on the opcode.
package protocol // import "github.com/teleinfo-cn/idpointer/protocol"

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// StreamHeader is the first byte written on a fresh connection to an
	// identifier server.
	StreamHeader byte = 0x49

	// Version is the protocol version carried in every envelope.
	Version byte = 3

	// MaxMessageSize is the largest body accepted from the wire.
	MaxMessageSize = 64 * 1024 * 1024
)

// Opcodes.
const (
	OpResolution uint32 = 1
	OpPing       uint32 = 2
	OpChallenge  uint32 = 100
	OpLogin      uint32 = 101
	OpLogout     uint32 = 102
)

// Response codes.
const (
	RCRequest        uint32 = 0 // requests carry no response code
	RCSuccess        uint32 = 1
	RCError          uint32 = 2
	RCServerBusy     uint32 = 3
	RCNotFound       uint32 = 100
	RCAuthNeeded     uint32 = 402
	RCAuthFailed     uint32 = 403
	RCSessionExpired uint32 = 404
)

// Envelope flags.
const (
	// FlagCertify asks the server to sign the response.
	FlagCertify uint32 = 1 << 0

	// FlagAuthoritative asks for resolution from the primary site.
	FlagAuthoritative uint32 = 1 << 1
)

// envelopeSize is the wire size of an Envelope: version byte plus five
// big-endian uint32 fields.
const envelopeSize = 1 + 5*4

// Envelope is the fixed message header.
type Envelope struct {
	Version      byte
	OpCode       uint32
	ResponseCode uint32
	Flags        uint32
	SessionID    uint32
	RequestID    uint32
}

// Message is one framed request or response.
type Message struct {
	Envelope
	Body []byte
}

// IsRequest reports whether m is a request (no response code set).
func (m *Message) IsRequest() bool { return m.ResponseCode == RCRequest }

// WriteMessage writes a framed message to w.
func WriteMessage(w io.Writer, m *Message) error {
	if len(m.Body) > MaxMessageSize {
		return fmt.Errorf("message body of %d exceeds maximum %d", len(m.Body), MaxMessageSize)
	}

	var buf [envelopeSize + 4]byte
	buf[0] = m.Version
	binary.BigEndian.PutUint32(buf[1:], m.OpCode)
	binary.BigEndian.PutUint32(buf[5:], m.ResponseCode)
	binary.BigEndian.PutUint32(buf[9:], m.Flags)
	binary.BigEndian.PutUint32(buf[13:], m.SessionID)
	binary.BigEndian.PutUint32(buf[17:], m.RequestID)
	binary.BigEndian.PutUint32(buf[21:], uint32(len(m.Body)))

	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write message envelope: %s", err)
	}
	if _, err := w.Write(m.Body); err != nil {
		return fmt.Errorf("write message body: %s", err)
	}
	return nil
}

// ReadMessage reads one framed message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	var buf [envelopeSize + 4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read message envelope: %w", err)
	}

	m := &Message{
		Envelope: Envelope{
			Version:      buf[0],
			OpCode:       binary.BigEndian.Uint32(buf[1:]),
			ResponseCode: binary.BigEndian.Uint32(buf[5:]),
			Flags:        binary.BigEndian.Uint32(buf[9:]),
			SessionID:    binary.BigEndian.Uint32(buf[13:]),
			RequestID:    binary.BigEndian.Uint32(buf[17:]),
		},
	}

	sz := binary.BigEndian.Uint32(buf[21:])
	if sz > MaxMessageSize {
		return nil, fmt.Errorf("max message size of %d exceeded: %d", MaxMessageSize, sz)
	}

	m.Body = make([]byte, sz)
	if _, err := io.ReadFull(r, m.Body); err != nil {
		return nil, fmt.Errorf("read message body: %s", err)
	}
	return m, nil
}

// EncodeMessage builds a framed message around a marshalable body.
func EncodeMessage(env Envelope, body encoding.BinaryMarshaler) (*Message, error) {
	if env.Version == 0 {
		env.Version = Version
	}
	m := &Message{Envelope: env}
	if body != nil {
		buf, err := body.MarshalBinary()
		if err != nil {
			return nil, err
		}
		m.Body = buf
	}
	return m, nil
}

// DecodeBody unmarshals the message body into v.
func (m *Message) DecodeBody(v encoding.BinaryUnmarshaler) error {
	return v.UnmarshalBinary(m.Body)
}
