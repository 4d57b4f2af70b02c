// Package client implements the identifier-resolution client: a thin
// request layer above the per-endpoint connection pools, plus the factory
// that hands out configured clients.
package client // import "github.com/teleinfo-cn/idpointer/client"

import (
	"errors"
	"fmt"
	"time"

	bstoml "github.com/BurntSushi/toml"

	"github.com/teleinfo-cn/idpointer/toml"
	"github.com/teleinfo-cn/idpointer/transport"
)

const (
	// DefaultServer is the resolution endpoint used when none is
	// configured.
	DefaultServer = "127.0.0.1:2641"

	// DefaultRequestTimeout bounds one request/response exchange on an
	// acquired connection.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultMaxRetries is how many times a failed dial is retried with
	// exponential backoff before the request fails.
	DefaultMaxRetries = 3

	// DefaultRateLimit is the client-side request rate limit in requests
	// per second. Zero disables the limit.
	DefaultRateLimit = 0

	// DefaultRateBurst is the token bucket size used when a rate limit is
	// set.
	DefaultRateBurst = 16
)

// Config represents the configuration for an identifier client.
type Config struct {
	Server         string        `toml:"server"`
	RequestTimeout toml.Duration `toml:"request-timeout"`
	MaxRetries     int           `toml:"max-retries"`
	RateLimit      float64       `toml:"rate-limit"`
	RateBurst      int           `toml:"rate-burst"`
	UseTLS         bool          `toml:"use-tls"`
	InsecureTLS    bool          `toml:"insecure-tls"`

	// Admin identity used for authenticated sessions. KeyFile points at a
	// private key written by the keygen command.
	UserIdentifier string `toml:"user-identifier"`
	UserIndex      uint32 `toml:"user-index"`
	KeyFile        string `toml:"key-file"`

	Transport transport.Config `toml:"transport"`
}

// NewConfig returns a new Config with defaults.
func NewConfig() Config {
	return Config{
		Server:         DefaultServer,
		RequestTimeout: toml.Duration(DefaultRequestTimeout),
		MaxRetries:     DefaultMaxRetries,
		RateLimit:      DefaultRateLimit,
		RateBurst:      DefaultRateBurst,
		Transport:      transport.NewConfig(),
	}
}

// FromTomlFile loads the config from a TOML file. Fields absent from the
// file keep their defaults.
func FromTomlFile(path string) (Config, error) {
	c := NewConfig()
	if _, err := bstoml.DecodeFile(path, &c); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate returns an error if the config is invalid.
func (c Config) Validate() error {
	if c.Server == "" {
		return errors.New("server must be set")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative, got %f", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate-burst must be positive, got %d", c.RateBurst)
	}
	return c.Transport.Validate()
}
