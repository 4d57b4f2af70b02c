package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Value is one typed record attached to an identifier.
type Value struct {
	Index     uint32
	Type      string
	Data      []byte
	TTL       uint32
	Timestamp int64
}

// ResolutionRequest asks a server for the values of an identifier,
// optionally restricted to the given types and indexes.
type ResolutionRequest struct {
	Identifier string
	Types      []string
	Indexes    []uint32
}

// MarshalBinary encodes the request to its wire format.
func (r *ResolutionRequest) MarshalBinary() ([]byte, error) {
	var b buffer
	b.writeString(r.Identifier)
	b.writeUint32(uint32(len(r.Types)))
	for _, t := range r.Types {
		b.writeString(t)
	}
	b.writeUint32(uint32(len(r.Indexes)))
	for _, idx := range r.Indexes {
		b.writeUint32(idx)
	}
	return b.bytes, nil
}

// UnmarshalBinary decodes the request from its wire format.
func (r *ResolutionRequest) UnmarshalBinary(data []byte) error {
	b := reader{bytes: data}
	r.Identifier = b.readString()

	n := b.readUint32()
	r.Types = nil
	for i := uint32(0); i < n && b.err == nil; i++ {
		r.Types = append(r.Types, b.readString())
	}

	n = b.readUint32()
	r.Indexes = nil
	for i := uint32(0); i < n && b.err == nil; i++ {
		r.Indexes = append(r.Indexes, b.readUint32())
	}
	return b.err
}

// ResolutionResponse returns the values of an identifier.
type ResolutionResponse struct {
	Identifier string
	Values     []Value
}

// MarshalBinary encodes the response to its wire format.
func (r *ResolutionResponse) MarshalBinary() ([]byte, error) {
	var b buffer
	b.writeString(r.Identifier)
	b.writeUint32(uint32(len(r.Values)))
	for i := range r.Values {
		v := &r.Values[i]
		b.writeUint32(v.Index)
		b.writeString(v.Type)
		b.writeBytes(v.Data)
		b.writeUint32(v.TTL)
		b.writeUint64(uint64(v.Timestamp))
	}
	return b.bytes, nil
}

// UnmarshalBinary decodes the response from its wire format.
func (r *ResolutionResponse) UnmarshalBinary(data []byte) error {
	b := reader{bytes: data}
	r.Identifier = b.readString()

	n := b.readUint32()
	r.Values = nil
	for i := uint32(0); i < n && b.err == nil; i++ {
		v := Value{
			Index: b.readUint32(),
			Type:  b.readString(),
			Data:  b.readBytes(),
			TTL:   b.readUint32(),
		}
		v.Timestamp = int64(b.readUint64())
		r.Values = append(r.Values, v)
	}
	return b.err
}

// ChallengeResponse carries the server nonce a client must sign to log in.
type ChallengeResponse struct {
	Nonce []byte
}

// MarshalBinary encodes the challenge to its wire format.
func (r *ChallengeResponse) MarshalBinary() ([]byte, error) {
	var b buffer
	b.writeBytes(r.Nonce)
	return b.bytes, nil
}

// UnmarshalBinary decodes the challenge from its wire format.
func (r *ChallengeResponse) UnmarshalBinary(data []byte) error {
	b := reader{bytes: data}
	r.Nonce = b.readBytes()
	return b.err
}

// LoginRequest answers a challenge with a signature made by the
// administrator identity's private key.
type LoginRequest struct {
	UserIdentifier string
	UserIndex      uint32
	Signature      []byte
}

// MarshalBinary encodes the login request to its wire format.
func (r *LoginRequest) MarshalBinary() ([]byte, error) {
	var b buffer
	b.writeString(r.UserIdentifier)
	b.writeUint32(r.UserIndex)
	b.writeBytes(r.Signature)
	return b.bytes, nil
}

// UnmarshalBinary decodes the login request from its wire format.
func (r *LoginRequest) UnmarshalBinary(data []byte) error {
	b := reader{bytes: data}
	r.UserIdentifier = b.readString()
	r.UserIndex = b.readUint32()
	r.Signature = b.readBytes()
	return b.err
}

// ErrorResponse carries a server-side failure description.
type ErrorResponse struct {
	Message string
}

// MarshalBinary encodes the error to its wire format.
func (r *ErrorResponse) MarshalBinary() ([]byte, error) {
	var b buffer
	b.writeString(r.Message)
	return b.bytes, nil
}

// UnmarshalBinary decodes the error from its wire format.
func (r *ErrorResponse) UnmarshalBinary(data []byte) error {
	b := reader{bytes: data}
	r.Message = b.readString()
	return b.err
}

// ResponseError converts a non-success response into an error.
func ResponseError(m *Message) error {
	var desc string
	var er ErrorResponse
	if len(m.Body) > 0 && m.DecodeBody(&er) == nil {
		desc = er.Message
	}
	switch m.ResponseCode {
	case RCNotFound:
		return fmt.Errorf("identifier not found: %s", desc)
	case RCAuthNeeded:
		return fmt.Errorf("authentication needed: %s", desc)
	case RCAuthFailed:
		return fmt.Errorf("authentication failed: %s", desc)
	case RCSessionExpired:
		return fmt.Errorf("session expired: %s", desc)
	case RCServerBusy:
		return fmt.Errorf("server busy: %s", desc)
	default:
		return fmt.Errorf("error code %d: %s", m.ResponseCode, desc)
	}
}

// buffer is an append-only wire encoder.
type buffer struct {
	bytes []byte
}

func (b *buffer) writeUint32(v uint32) {
	b.bytes = binary.BigEndian.AppendUint32(b.bytes, v)
}

func (b *buffer) writeUint64(v uint64) {
	b.bytes = binary.BigEndian.AppendUint64(b.bytes, v)
}

func (b *buffer) writeBytes(v []byte) {
	b.writeUint32(uint32(len(v)))
	b.bytes = append(b.bytes, v...)
}

func (b *buffer) writeString(v string) {
	b.writeBytes([]byte(v))
}

var errShortMessage = errors.New("truncated message body")

// reader is a bounds-checked wire decoder. The first decode error sticks;
// later reads return zero values.
type reader struct {
	bytes []byte
	off   int
	err   error
}

func (b *reader) readUint32() uint32 {
	if b.err != nil || b.off+4 > len(b.bytes) {
		b.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(b.bytes[b.off:])
	b.off += 4
	return v
}

func (b *reader) readUint64() uint64 {
	if b.err != nil || b.off+8 > len(b.bytes) {
		b.fail()
		return 0
	}
	v := binary.BigEndian.Uint64(b.bytes[b.off:])
	b.off += 8
	return v
}

func (b *reader) readBytes() []byte {
	n := int(b.readUint32())
	if b.err != nil || b.off+n > len(b.bytes) {
		b.fail()
		return nil
	}
	v := b.bytes[b.off : b.off+n : b.off+n]
	b.off += n
	return v
}

func (b *reader) readString() string {
	return string(b.readBytes())
}

func (b *reader) fail() {
	if b.err == nil {
		b.err = errShortMessage
	}
}
