package rframe

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// SetLogger installs the logger used for planner decisions and IO progress.
// The default discards everything. Passing nil restores the default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l.Named("rframe"))
}

// Logger returns the package logger.
func Logger() *zap.Logger {
	return logger.Load()
}
