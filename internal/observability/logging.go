package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger provides structured logging with request correlation and sensitive
// data redaction.
//
// The logging system is built on Go's slog package and provides:
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - JSON output format for production environments
//   - Human-readable text format for development
//   - Automatic request ID correlation from context
//   - Redaction of sensitive data (API keys, tokens, passwords)
//
// Usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	logger.Info(ctx, "Document stored", "document_id", id, "pages", 12)
type Logger struct {
	logger  *slog.Logger
	config  LogConfig
	redacts []*regexp.Regexp
}

// LogConfig configures the logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format specifies output format: "json" or "text"
	// JSON format is recommended for production; text for development
	Format string

	// Output is the writer for log output (defaults to os.Stdout)
	Output io.Writer

	// AddSource includes file and line number in log records
	AddSource bool

	// RedactPatterns are additional regex patterns for sensitive data redaction
	// Default patterns already cover common secrets (API keys, tokens, passwords)
	RedactPatterns []string
}

// ContextKey is the type for context keys used in logging.
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey ContextKey = "request_id"

	// SessionIDKey is the context key for chat session IDs.
	SessionIDKey ContextKey = "session_id"

	// UserIDKey is the context key for user IDs.
	UserIDKey ContextKey = "user_id"

	// DocumentIDKey is the context key for the document a pipeline run is
	// processing.
	DocumentIDKey ContextKey = "document_id"
)

// DefaultRedactPatterns contains regex patterns for common sensitive data.
var DefaultRedactPatterns = []string{
	// API keys and tokens
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,

	// OpenAI API keys (48 chars after sk-)
	`sk-[a-zA-Z0-9]{48,}`,

	// AMQP and postgres URLs with inline credentials
	`(?i)(amqps?|postgres(?:ql)?)://[^:/\s]+:[^@\s]+@`,

	// JWT tokens
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,

	// Generic hex secrets (32+ chars)
	`(?i)(secret|key|token)[\s:=]+["\']?([a-fA-F0-9]{32,})["\']?`,
}

// NewLogger creates a new structured logger with the given configuration.
//
// If config.Output is nil, logs are written to os.Stdout.
// If config.Level is empty or invalid, defaults to "info".
// If config.Format is empty, defaults to "json".
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Level == "" {
		config.Level = "info"
	}
	if config.Format == "" {
		config.Format = "json"
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	if config.Format == "json" {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0)
	allPatterns := append(DefaultRedactPatterns, config.RedactPatterns...)
	for _, pattern := range allPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{
		logger:  slog.New(handler),
		config:  config,
		redacts: redacts,
	}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info-level message with optional key-value pairs.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning-level message with optional key-value pairs.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error-level message with optional key-value pairs.
// Errors passed as args are redacted like any other value.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

// log is the internal logging implementation that handles redaction and
// context extraction.
func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	msg = l.redactString(msg)

	redactedArgs := make([]any, len(args))
	for i, arg := range args {
		redactedArgs[i] = l.redactValue(arg)
	}

	attrs := make([]any, 0, len(redactedArgs)+8)

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		attrs = append(attrs, "session_id", sessionID)
	}
	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		attrs = append(attrs, "user_id", userID)
	}
	if documentID, ok := ctx.Value(DocumentIDKey).(string); ok && documentID != "" {
		attrs = append(attrs, "document_id", documentID)
	}

	attrs = append(attrs, redactedArgs...)

	l.logger.Log(ctx, level, msg, attrs...)
}

// redactValue redacts sensitive data from a value.
func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.redactString(val)
	case error:
		return l.redactString(val.Error())
	case []byte:
		return l.redactString(string(val))
	case map[string]any:
		return l.redactMap(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, v := range val {
			m[k] = v
		}
		return l.redactMap(m)
	default:
		// For other types, try to convert to JSON and redact
		if b, err := json.Marshal(v); err == nil {
			return l.redactString(string(b))
		}
		return v
	}
}

// redactString applies all redaction patterns to a string.
func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// redactMap redacts sensitive data from a map.
func (l *Logger) redactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	sensitiveKeys := map[string]bool{
		"password":      true,
		"passwd":        true,
		"secret":        true,
		"token":         true,
		"api_key":       true,
		"apikey":        true,
		"secret_key":    true,
		"access_key":    true,
		"private_key":   true,
		"auth":          true,
		"authorization": true,
	}

	for k, v := range m {
		lowerKey := strings.ToLower(strings.ReplaceAll(k, "-", "_"))
		if sensitiveKeys[lowerKey] {
			result[k] = "[REDACTED]"
		} else {
			result[k] = l.redactValue(v)
		}
	}
	return result
}

// WithFields returns a new logger with the given fields added to all log
// records.
//
// Example:
//
//	workerLogger := logger.WithFields("component", "consumer")
//	workerLogger.Info(ctx, "Queue bound") // Includes component=consumer
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{
		logger:  l.logger.With(args...),
		config:  l.config,
		redacts: l.redacts,
	}
}

// AddRequestID adds a request ID to the context.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// AddSessionID adds a chat session ID to the context.
func AddSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// AddUserID adds a user ID to the context.
func AddUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// AddDocumentID adds a document ID to the context.
func AddDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, documentID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetSessionID retrieves the chat session ID from the context.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}
