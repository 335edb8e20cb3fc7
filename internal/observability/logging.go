// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// SetLogger replaces the logger used by StoreLogger, StreamLogger and the
// async helpers.
func SetLogger(l *slog.Logger) {
	if l != nil {
		GlobalLogger = &Logger{Logger: l}
	}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
)

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableStoreLogging  bool
	EnableStreamLogging bool
}

var (
	// Config holds the current logging configuration.
	Config = LoggingConfig{
		EnableStoreLogging:  true,
		EnableStreamLogging: true,
	}
)

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// StoreLogger provides structured logging for document store operations.
// Reads are logged at debug level, writes at info.
type StoreLogger struct {
	backend string
}

// NewStoreLogger creates a StoreLogger tagged with the backend name.
func NewStoreLogger(backend string) *StoreLogger {
	return &StoreLogger{backend: backend}
}

func (l *StoreLogger) attrs(ctx context.Context, operation, collection string, fields map[string]any) []any {
	attrs := []any{
		slog.String("backend", l.backend),
		slog.String("operation", operation),
		slog.String("collection", collection),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// LogRead logs a read or query.
func (l *StoreLogger) LogRead(ctx context.Context, operation, collection string, fields map[string]any) {
	if !Config.EnableStoreLogging {
		return
	}
	GlobalLogger.DebugContext(ctx, "store read", l.attrs(ctx, operation, collection, fields)...)
}

// LogWrite logs a mutation.
func (l *StoreLogger) LogWrite(ctx context.Context, operation, collection string, fields map[string]any) {
	if !Config.EnableStoreLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, "store write", l.attrs(ctx, operation, collection, fields)...)
}

// LogError logs a store error.
func (l *StoreLogger) LogError(ctx context.Context, err error, operation, collection string) {
	if !Config.EnableStoreLogging {
		return
	}
	StoreErrors.WithLabelValues(l.backend, operation).Inc()
	GlobalLogger.ErrorContext(ctx, "store error",
		append(l.attrs(ctx, operation, collection, nil), slog.String("error", err.Error()))...)
}

// StreamLogger provides structured logging for live WebSocket streams.
type StreamLogger struct {
	stream string
}

// NewStreamLogger creates a StreamLogger for the named stream.
func NewStreamLogger(stream string) *StreamLogger {
	return &StreamLogger{stream: stream}
}

// LogConnect logs a subscriber joining the stream.
func (l *StreamLogger) LogConnect(ctx context.Context, userID, topic string) {
	if !Config.EnableStreamLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, "stream connected",
		slog.String("stream", l.stream),
		slog.String("user_id", userID),
		slog.String("topic", topic),
	)
}

// LogDisconnect logs a subscriber leaving the stream.
func (l *StreamLogger) LogDisconnect(ctx context.Context, userID, topic, reason string) {
	if !Config.EnableStreamLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, "stream disconnected",
		slog.String("stream", l.stream),
		slog.String("user_id", userID),
		slog.String("topic", topic),
		slog.String("reason", reason),
	)
}

// LogError logs a stream error.
func (l *StreamLogger) LogError(ctx context.Context, userID, topic string, err error) {
	if !Config.EnableStreamLogging {
		return
	}
	GlobalLogger.ErrorContext(ctx, "stream error",
		slog.String("stream", l.stream),
		slog.String("user_id", userID),
		slog.String("topic", topic),
		slog.String("error", err.Error()),
	)
}

// LogAsyncOperationStart logs the start of an asynchronous operation.
func LogAsyncOperationStart(ctx context.Context, operation string, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_start"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "async operation started", attrs...)
}

// LogAsyncOperationEnd logs the completion of an asynchronous operation.
func LogAsyncOperationEnd(ctx context.Context, operation string, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_end"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "async operation completed", attrs...)
}

// LogAsyncOperationError logs an error in an asynchronous operation.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.ErrorContext(ctx, "async operation failed", attrs...)
}
