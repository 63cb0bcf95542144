package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSecretRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "debug")

	tests := []struct {
		key    string
		value  string
		should bool
	}{
		{"api_token", "secret123", true},
		{"API_KEY", "key456", true},
		{"password", "pass789", true},
		{"secret", "mysecret", true},
		{"rpc_url", "https://example.com", false},
		{"identifier", "athleteRegistry", false},
		{"count", "42", false},
	}

	for _, tt := range tests {
		buf.Reset()
		logger.Info("test", tt.key, tt.value)
		output := buf.String()

		if tt.should {
			if !strings.Contains(output, "[redacted]") {
				t.Errorf("key %q should be redacted, output: %s", tt.key, output)
			}
			if strings.Contains(output, tt.value) {
				t.Errorf("key %q value %q should not appear, output: %s", tt.key, tt.value, output)
			}
		} else {
			if strings.Contains(output, "[redacted]") {
				t.Errorf("key %q should not be redacted, output: %s", tt.key, output)
			}
			if !strings.Contains(output, tt.value) {
				t.Errorf("key %q value %q should appear, output: %s", tt.key, tt.value, output)
			}
		}
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.level); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
		if NewWithLevel(tt.level) == nil {
			t.Errorf("NewWithLevel(%q) returned nil", tt.level)
		}
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "info")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %s", buf.String())
	}
}
