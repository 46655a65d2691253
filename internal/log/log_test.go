package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"warn+2", slog.LevelWarn + 2},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseLevel(%q): got %v, %v", tc.in, got, err)
		}
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Error("expected error")
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(&buf, "warn", FormatJSON), "session")

	logger.Info("hidden")
	logger.Warn("shown", "state", "streaming")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines: %q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["component"] != "session" || rec["state"] != "streaming" {
		t.Errorf("record: %v", rec)
	}
}

func TestNew_BadLevelFallsBack(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "chatty", FormatText)
	if !strings.Contains(buf.String(), "using info level") {
		t.Errorf("fallback not reported: %q", buf.String())
	}
	buf.Reset()
	logger.Debug("hidden")
	logger.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output: %q", buf.String())
	}
}
