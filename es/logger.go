package es

import "context"

// Logger is the optional observability hook accepted by stores, the command
// executor, projection processors and the snapshot loader.
// Components nil-check it, so leaving it unset costs nothing.
// See es/logging/zaplog for a zap-backed implementation.
type Logger interface {
	// Debug logs verbose operational details such as versions and cursors.
	Debug(ctx context.Context, msg string, keyvals ...interface{})

	// Info logs significant events during normal execution, such as appends.
	Info(ctx context.Context, msg string, keyvals ...interface{})

	// Error logs failures, including version conflicts.
	Error(ctx context.Context, msg string, keyvals ...interface{})
}

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct{}

// Debug implements Logger.
func (NoOpLogger) Debug(_ context.Context, _ string, _ ...interface{}) {}

// Info implements Logger.
func (NoOpLogger) Info(_ context.Context, _ string, _ ...interface{}) {}

// Error implements Logger.
func (NoOpLogger) Error(_ context.Context, _ string, _ ...interface{}) {}
