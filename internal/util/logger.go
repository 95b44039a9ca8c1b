// Package util provides helper functions for logging events.
package util

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SetupLogger builds the process-wide zap logger at the given level
// (debug, info, warn, error) and installs it as the global logger.
func SetupLogger(level string) *zap.Logger {
	logger := NewLogger(level, os.Stderr)
	zap.ReplaceGlobals(logger)
	return logger
}

// NewLogger creates a console logger writing to w.
func NewLogger(level string, w zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "component",
		MessageKey:       "msg",
		EncodeTime:       zapcore.RFC3339TimeEncoder,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " | ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), w, parseLevel(level))
	return zap.New(core)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Named returns a sugared logger for one component of the global logger.
func Named(component string) *zap.SugaredLogger {
	return zap.S().Named(component)
}

// Info prints general system information messages.
func Info(msg string, args ...any) {
	zap.S().Infof(msg, args...)
}

// Error prints error messages.
func Error(msg string, args ...any) {
	zap.S().Errorf(msg, args...)
}
