// Package logger provides a structured logging interface for followback.
//
// It wraps the zerolog library to provide a small API with support for:
// - Multiple log levels (Debug, Info, Warn, Error, Fatal)
// - Structured logging with fields
// - Pretty console output on stderr, optionally teed to a JSON file
// - A global logger instance for easy access
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//
//	logger.Info("Server starting")
//	logger.WithField("address", addr).Info("Analyze request admitted")
//	logger.WithError(err).Error("Provider call failed")
//
// Components receive a Logger explicitly and tests pass NewTestLogger or
// NewNopLogger. Passwords are never logged.
package logger
