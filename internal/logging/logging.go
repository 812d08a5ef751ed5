// Package logging builds the process logger on top of zap.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels accepted by New.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// defaultLevel applies when an unknown level string is provided.
const defaultLevel = zapcore.InfoLevel

// ParseLevel converts a textual level to a zapcore.Level.
func ParseLevel(s string) zapcore.Level {
	switch s {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return defaultLevel
	}
}

// New returns a sugared console logger writing to stderr at the given level.
func New(level string) *zap.SugaredLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	ws := zapcore.Lock(os.Stderr)
	core := zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(ParseLevel(level)))
	return zap.New(core).Sugar()
}
