// Package log builds the zap loggers used by the module and defines the
// typed fields shared between components.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// ConsoleEncoder writes human readable lines.
	ConsoleEncoder = "console"
	// JSONEncoder writes one JSON object per line.
	JSONEncoder = "json"
)

// where logs go by default.
var logWriter io.Writer = os.Stdout

// NewNop creates silent logger.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// Encoder returns the zap encoder for the given kind.
func Encoder(kind string) (zapcore.Encoder, error) {
	switch kind {
	case ConsoleEncoder, "":
		return zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), nil
	case JSONEncoder:
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), nil
	default:
		return nil, fmt.Errorf("unknown log encoder %q", kind)
	}
}

// NewWithLevel creates a named logger with a fixed level and with a set of (optional) hooks.
func NewWithLevel(module string,
	level zap.AtomicLevel,
	encoder zapcore.Encoder,
	hooks ...func(zapcore.Entry) error,
) *zap.Logger {
	core := zapcore.NewCore(encoder, zapcore.AddSync(logWriter), level)
	return zap.New(zapcore.RegisterHooks(core, hooks...)).Named(module)
}

// New creates a logger named module that writes with the encoder kind at the given level.
func New(module, encoder, level string) (*zap.Logger, error) {
	enc, err := Encoder(encoder)
	if err != nil {
		return nil, err
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse level for %s: %w", module, err)
	}
	return NewWithLevel(module, lvl, enc), nil
}
