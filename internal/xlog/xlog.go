// Package xlog wires the engine's structured logging onto logr.Logger,
// following the session/link-scoped style of the teacher's internal/debug
// package (numeric verbosity levels, call sites named by component). The
// default production backend is zap, via zapr, matching the logr+zapr
// pairing used by the controller in the kedacore/keda codebase.
package xlog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// NewProduction returns a logr.Logger backed by a production zap config
// (JSON output, info level). Suitable as the default Context logger.
func NewProduction() logr.Logger {
	zl, err := zap.NewProduction()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// NewDevelopment returns a logr.Logger backed by a development zap config
// (console output, debug level, stack traces on warnings+).
func NewDevelopment() logr.Logger {
	zl, err := zap.NewDevelopment()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// WithSession returns l scoped with the session id and direction, the
// recurring fields attached to every log line a session emits.
func WithSession(l logr.Logger, direction string, id uint16) logr.Logger {
	return l.WithValues("direction", direction, "sessionID", id)
}
