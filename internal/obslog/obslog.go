// Package obslog builds the structured, per-subsystem loggers used
// across AetherOS core: one process-wide go.uber.org/zap base logger
// with a named sub-logger per component.
package obslog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu   sync.Mutex
	base *zap.Logger
)

// SetBase installs the process-wide base logger. Subsequent calls to
// Named build sub-loggers from it. Safe to call before any subsystem
// starts; if never called, a no-op logger is used.
func SetBase(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// NewProduction builds and installs a production zap.Logger (JSON,
// info level and above) as the base logger.
func NewProduction() (*zap.Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	SetBase(l)
	return l, nil
}

// Named returns a logger scoped to the given subsystem name (e.g.
// "cache", "journal", "tier"). Falls back to zap's global no-op logger
// if no base has been installed.
func Named(name string) *zap.Logger {
	mu.Lock()
	l := base
	mu.Unlock()
	if l == nil {
		return zap.NewNop().Named(name)
	}
	return l.Named(name)
}
