package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := t.TempDir()
		logger, err := NewLogger(dir, LevelInfo, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("hello")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.closer != nil {
			t.Error("expected no closer for stderr logger")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close on stderr logger = %v, want nil", err)
		}
	})
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{LevelDebug, 4},
		{LevelInfo, 3},
		{LevelWarn, 2},
		{LevelError, 1},
		{"bogus", 3},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWriterLogger(&buf, tt.level)
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			if got := len(decodeLines(t, buf.String())); got != tt.want {
				t.Errorf("lines = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChildLoggers(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, LevelDebug)

	root.WithComponent("coordinator").WithResource("overworld").Info("paused", "outcome", "applied")
	root.WithAttempt("a-1").With("reason", "gc", 42, "ignored").Warn("reclaim")
	root.Info("plain")

	lines := decodeLines(t, buf.String())
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}

	if lines[0][KeyComponent] != "coordinator" || lines[0][KeyResource] != "overworld" {
		t.Errorf("first line attrs = %v", lines[0])
	}
	if lines[0]["outcome"] != "applied" {
		t.Errorf("outcome = %v, want applied", lines[0]["outcome"])
	}
	if lines[1][KeyAttempt] != "a-1" || lines[1]["reason"] != "gc" {
		t.Errorf("second line attrs = %v", lines[1])
	}
	if _, ok := lines[2][KeyComponent]; ok {
		t.Error("parent logger picked up child attributes")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close = %v, want nil", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug": LevelDebug,
		"WARN":  LevelWarn,
		"Error": LevelError,
		"":      LevelInfo,
		"trace": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
	if len(ValidLevels()) != 4 {
		t.Errorf("ValidLevels() = %v", ValidLevels())
	}
}
