// Copyright © 2018 One Concern

// Package dlogger exposes a simple zap logger, with log levels
package dlogger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LogLevelInfo sets the log level to info
	LogLevelInfo = "info"

	// LogLevelDebug sets the log level to debug
	LogLevelDebug = "debug"

	// LogLevelWarn sets the log level to warn
	LogLevelWarn = "warn"

	// LogLevelNone sets logger to no logging
	LogLevelNone = "none"
)

const (
	// FormatJSON emits structured JSON logs (production encoder)
	FormatJSON = "json"

	// FormatConsole emits human readable logs
	FormatConsole = "console"
)

// GetLogger returns a zap logger with the specified level, using the JSON encoder
func GetLogger(logLevel string) (*zap.Logger, error) {
	return GetLoggerWithFormat(logLevel, FormatJSON)
}

// GetLoggerWithFormat returns a zap logger with the specified level and encoding
func GetLoggerWithFormat(logLevel, format string) (*zap.Logger, error) {
	if strings.EqualFold(logLevel, LogLevelNone) {
		return zap.NewNop(), nil
	}

	var zapConfig zap.Config
	switch strings.ToLower(format) {
	case "", FormatJSON:
		zapConfig = zap.NewProductionConfig()
	case FormatConsole:
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	return zapConfig.Build()
}

// MustGetLogger returns a zap logger with the specified level or panics
func MustGetLogger(logLevel string) *zap.Logger {
	l, err := GetLogger(logLevel)
	if err != nil {
		panic(err)
	}
	return l
}
