package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// base logger, JSON to stdout, tagged with the service name.
var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: levelFromEnv(),
})).With("service", "chatbot")

// levelFromEnv reads CHATBOT_LOG_LEVEL (debug|info|warn|error), default info.
func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("CHATBOT_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// LoggerFromContext returns the service logger, with request_id attached
// when the context carries one.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	if reqID == "" {
		return logger
	}
	return logger.With("request_id", reqID)
}
