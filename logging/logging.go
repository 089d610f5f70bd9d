// Package logging builds the process logger.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

type Config struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// DefaultConfig logs at info level in console format.
func DefaultConfig() Config {
	return Config{Level: "info", Encoding: EncodingConsole}
}

// New returns a logger writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	return NewWithSyncer(cfg, zapcore.Lock(os.Stderr))
}

// NewWithSyncer returns a logger writing to ws.
func NewWithSyncer(cfg Config, ws zapcore.WriteSyncer) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
		}
	}
	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Encoding) {
	case "", EncodingConsole:
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case EncodingJSON:
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("logging: unknown encoding %q", cfg.Encoding)
	}
	return zap.New(zapcore.NewCore(encoder, ws, level)).Named("netmap"), nil
}
