package client

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teleinfo-cn/idpointer/protocol"
	"github.com/teleinfo-cn/idpointer/security"
)

// Identity is the administrator identity a client authenticates as: an
// identifier, the index of its public-key value, and the matching private
// key.
type Identity struct {
	Identifier string
	Index      uint32
	PrivateKey *rsa.PrivateKey
}

// LoadIdentity builds an identity from the configured key file.
func (c Config) LoadIdentity(passphrase []byte) (*Identity, error) {
	if c.UserIdentifier == "" || c.KeyFile == "" {
		return nil, errors.New("user-identifier and key-file must be set for authentication")
	}
	key, err := security.LoadPrivateKey(c.KeyFile, passphrase)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Identifier: c.UserIdentifier,
		Index:      c.UserIndex,
		PrivateKey: key,
	}, nil
}

// Login authenticates the client: it requests a challenge from the server,
// signs the nonce with the identity's private key, and answers. On success
// every later request carries the granted session.
func (c *Client) Login(ctx context.Context, id *Identity) error {
	if id == nil || id.PrivateKey == nil {
		return errors.New("identity with a private key is required")
	}

	m, err := c.roundTrip(ctx, protocol.OpChallenge, nil)
	if err != nil {
		return fmt.Errorf("request challenge: %w", err)
	}
	var challenge protocol.ChallengeResponse
	if err := m.DecodeBody(&challenge); err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	sig, err := security.Sign(challenge.Nonce, id.PrivateKey)
	if err != nil {
		return fmt.Errorf("sign challenge: %w", err)
	}

	m, err = c.roundTrip(ctx, protocol.OpLogin, &protocol.LoginRequest{
		UserIdentifier: id.Identifier,
		UserIndex:      id.Index,
		Signature:      sig,
	})
	if err != nil {
		return err
	}
	if m.SessionID == 0 {
		return errors.New("server granted no session")
	}

	atomic.StoreUint32(&c.sessionID, m.SessionID)
	c.logger.Info("Logged in",
		zap.String("user", id.Identifier),
		zap.Uint32("session_id", m.SessionID))
	return nil
}

// Logout releases the client's session on the server.
func (c *Client) Logout(ctx context.Context) error {
	if c.SessionID() == 0 {
		return nil
	}
	_, err := c.roundTrip(ctx, protocol.OpLogout, nil)
	atomic.StoreUint32(&c.sessionID, 0)
	return err
}
