// Package zaplog adapts a zap logger to es.Logger.
package zaplog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/getpup/pupkernel/es"
)

// Logger writes es.Logger calls to a zap SugaredLogger.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

var _ es.Logger = (*Logger)(nil)

// New wraps an existing zap logger.
func New(l *zap.Logger) *Logger {
	return &Logger{SugaredLogger: l.Sugar()}
}

// NewFromMode builds a zap logger. "prod" and "production" select the JSON
// production config; anything else selects the development console config.
// Both log at debug level.
func NewFromMode(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(zapLogger), nil
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

// With returns a logger that adds keyvals to every entry.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keyvals...)}
}

// Debug implements es.Logger.
func (l *Logger) Debug(_ context.Context, msg string, keyvals ...interface{}) {
	l.SugaredLogger.Debugw(msg, keyvals...)
}

// Info implements es.Logger.
func (l *Logger) Info(_ context.Context, msg string, keyvals ...interface{}) {
	l.SugaredLogger.Infow(msg, keyvals...)
}

// Error implements es.Logger.
func (l *Logger) Error(_ context.Context, msg string, keyvals ...interface{}) {
	l.SugaredLogger.Errorw(msg, keyvals...)
}
