// Package logger builds the process logger used by the CLI and services.
package logger // import "github.com/teleinfo-cn/idpointer/logger"

import (
	"io"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing logfmt records to w at info level.
func New(w io.Writer) *zap.Logger {
	config := NewConfig()
	l, _ := config.New(w)
	return l
}

// Config represents the configuration for creating a zap.Logger.
type Config struct {
	Level zapcore.Level `toml:"level"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{Level: zapcore.InfoLevel}
}

// New creates a new zap.Logger for the given writer.
func (c Config) New(defaultOutput io.Writer) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	encoderConfig.EncodeDuration = func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(d.String())
	}

	encoder := zaplogfmt.NewEncoder(encoderConfig)
	return zap.New(zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(defaultOutput)),
		c.Level,
	)), nil
}
