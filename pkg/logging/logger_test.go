package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		enable  slog.Level
		disable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"warn level", "WARN", slog.LevelWarn, slog.LevelInfo},
		{"error level", "error", slog.LevelError, slog.LevelWarn},
		{"default info", "", slog.LevelInfo, slog.LevelDebug},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
			if logger.Enabled(ctx, tt.disable) {
				t.Fatalf("expected level %s to be disabled", tt.disable)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	logger.Info("test message", "key", "value")

	if logger.Logger == nil {
		t.Fatal("Default() returned Logger with nil slog.Logger")
	}
	if Default() == logger {
		t.Error("Default() returned the same instance twice")
	}
}

func TestComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info").Component("leads")
	logger.Info("lead persisted", "session_id", "sess-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if record["component"] != "leads" {
		t.Fatalf("expected component field, got %#v", record["component"])
	}
	if record["session_id"] != "sess-1" {
		t.Fatalf("expected session_id field, got %#v", record["session_id"])
	}
}

func TestComponentOnNilLogger(t *testing.T) {
	var logger *Logger
	if logger.Component("x") == nil {
		t.Fatal("expected a usable logger from a nil receiver")
	}
}
