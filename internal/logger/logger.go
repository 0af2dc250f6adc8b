package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ValidLogLevels enumerates the accepted log level names.
var ValidLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// root logger
var root atomic.Pointer[Logger]

// Logger wraps zap.SugaredLogger to give every component the same logging
// surface: structured (Infow/Errorw) and printf-style (Infof/Errorf) methods.
type Logger struct {
	*zap.SugaredLogger
}

// NewLogger creates a logger at the given level. Development mode switches to
// the console encoder with stack traces.
func NewLogger(level string, development bool) (*Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: zl.Sugar()}, nil
}

// NewNopLogger creates a logger that discards everything. Useful for tests.
func NewNopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithComponent creates a child logger tagged with a component name field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{SugaredLogger: l.With("component", component)}
}

// Close flushes any buffered log entries.
func (l *Logger) Close() error {
	return l.Sync()
}

// GetDefaultLogger returns the process-wide fallback logger, creating it on
// first use.
func GetDefaultLogger() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	l, err := NewLogger("info", true)
	if err != nil {
		panic(err)
	}
	root.Store(l)
	return root.Load()
}

// SetDefaultLogger replaces the process-wide fallback logger.
func SetDefaultLogger(l *Logger) {
	root.Store(l)
}
