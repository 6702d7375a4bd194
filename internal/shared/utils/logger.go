package utils

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger   = zap.NewNop()
	loggerMu sync.RWMutex
)

// InitLogger builds the process-wide zap logger. Debug switches to the
// development config (console encoder, DebugLevel).
func InitLogger(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = true
	}

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	return nil
}

// Logger returns the process-wide logger (a nop logger before InitLogger).
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Sync flushes buffered log entries; safe to call on shutdown paths.
func Sync() {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	_ = logger.Sync()
}
