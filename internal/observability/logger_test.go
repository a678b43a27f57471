package observability

import (
	"context"
	"log/slog"
	"testing"
)

func TestLevelFromEnv(t *testing.T) {
	cases := []struct {
		env  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, c := range cases {
		t.Setenv("CHATBOT_LOG_LEVEL", c.env)
		if got := levelFromEnv(); got != c.want {
			t.Errorf("CHATBOT_LOG_LEVEL=%q: expected %v, got %v", c.env, c.want, got)
		}
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) == nil {
		t.Fatal("expected base logger for a bare context")
	}

	ctx := WithRequestID(context.Background(), "req-123")
	tagged := LoggerFromContext(ctx)
	if tagged == nil {
		t.Fatal("expected logger for a request-tagged context")
	}
	if tagged == LoggerFromContext(context.Background()) {
		t.Error("expected a distinct logger once request_id is attached")
	}
}
