package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance
func New() *Logger {
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Text output while developing, JSON everywhere else
	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewWithHandler builds a logger on top of an existing handler (tests use this
// to capture output).
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{Logger: slog.New(h)}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelationID adds the outbound correlation id to logger context
func (l *Logger) WithCorrelationID(correlationID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("correlation_id", correlationID)),
	}
}

// WithAttempt scopes the logger to a single booking attempt
func (l *Logger) WithAttempt(attemptID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("attempt_id", attemptID)),
	}
}

// WithUserID adds user ID to logger context
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("user_id", userID)),
	}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("error", err.Error())),
	}
}

// WithFields adds multiple fields to logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// HTTP logging methods

// LogHTTPRequest logs a request served by the booking gateway
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
		slog.Int("size", c.Writer.Size()),
	)
}

// LogHTTPError logs a gateway error response
func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	l.Logger.ErrorContext(c.Request.Context(),
		"HTTP Error",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
		slog.String("ip", c.ClientIP()),
	)
}

// Backend API logging methods

// LogAPICall logs one outbound call to the ticketing backend
func (l *Logger) LogAPICall(ctx context.Context, method, path string, status int, duration time.Duration, err error) {
	if err != nil {
		l.Logger.WarnContext(ctx,
			"Backend Call Failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Logger.DebugContext(ctx,
		"Backend Call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
	)
}

// LogSlowCall logs backend calls that came close to the client timeout
func (l *Logger) LogSlowCall(ctx context.Context, path string, duration time.Duration) {
	l.Logger.WarnContext(ctx,
		"Slow Backend Call",
		slog.String("path", path),
		slog.Duration("duration", duration),
	)
}

// Workflow logging methods

// LogTransition logs a booking attempt state change
func (l *Logger) LogTransition(ctx context.Context, attemptID, from, to string) {
	l.Logger.InfoContext(ctx,
		"Attempt Transition",
		slog.String("attempt_id", attemptID),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogReservationCreated logs when the backend accepted a reservation
func (l *Logger) LogReservationCreated(ctx context.Context, attemptID, reservationID, eventID string) {
	l.Logger.InfoContext(ctx,
		"Reservation Created",
		slog.String("attempt_id", attemptID),
		slog.String("reservation_id", reservationID),
		slog.String("event_id", eventID),
	)
}

// LogFallbackUsed logs when reservation creation switched to the fallback transport
func (l *Logger) LogFallbackUsed(ctx context.Context, attemptID string, primaryErr error) {
	l.Logger.WarnContext(ctx,
		"Reservation Fallback",
		slog.String("attempt_id", attemptID),
		slog.String("primary_error", primaryErr.Error()),
	)
}

// LogPaymentCaptured logs the outcome of a capture
func (l *Logger) LogPaymentCaptured(ctx context.Context, attemptID, paymentID, status string) {
	l.Logger.InfoContext(ctx,
		"Payment Captured",
		slog.String("attempt_id", attemptID),
		slog.String("payment_id", paymentID),
		slog.String("status", status),
	)
}

// Security logging methods

// LogAuthSuccess logs successful authentication
func (l *Logger) LogAuthSuccess(ctx context.Context, userID, method string) {
	l.Logger.InfoContext(ctx,
		"Authentication Success",
		slog.String("user_id", userID),
		slog.String("method", method),
	)
}

// LogAuthFailure logs failed authentication
func (l *Logger) LogAuthFailure(ctx context.Context, reason string) {
	l.Logger.WarnContext(ctx,
		"Authentication Failure",
		slog.String("reason", reason),
	)
}

// LogSessionInvalidated logs a session being dropped after a 401 or expiry
func (l *Logger) LogSessionInvalidated(ctx context.Context, reason string) {
	l.Logger.WarnContext(ctx,
		"Session Invalidated",
		slog.String("reason", reason),
	)
}

// LogRateLimitExceeded logs rate limit exceeded
func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, endpoint string) {
	l.Logger.WarnContext(ctx,
		"Rate Limit Exceeded",
		slog.String("ip", ip),
		slog.String("endpoint", endpoint),
	)
}

// Helper methods for common patterns

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.InfoContext(ctx, msg, args...)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2+2)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.ErrorContext(ctx, msg, args...)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.DebugContext(ctx, msg, args...)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
