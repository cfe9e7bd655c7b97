package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_JSONShape(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerWithWriter("debug", &buf)
	if err != nil {
		t.Fatalf("NewLoggerWithWriter: %v", err)
	}

	l.With(map[string]any{"session_id": "s-1"}).Info("packet dispatched", map[string]any{"seq": 3})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "packet dispatched" {
		t.Errorf("expected message field, got %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("expected lowercase level, got %v", entry["level"])
	}
	if entry["session_id"] != "s-1" {
		t.Errorf("expected session_id context, got %v", entry["session_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok {
		t.Fatalf("expected fields object, got %T", entry["fields"])
	}
	if fields["seq"] != float64(3) {
		t.Errorf("expected seq=3, got %v", fields["seq"])
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerWithWriter("warn", &buf)
	if err != nil {
		t.Fatalf("NewLoggerWithWriter: %v", err)
	}

	l.Info("dropped", nil)
	l.Warn("kept", nil)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn entry should be written")
	}
}

func TestParseLevel_Invalid(t *testing.T) {
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger
	l.Info("ignored", nil)
	l.With(map[string]any{"a": 1}).Error("ignored", nil)
	l.Sugar().Infof("ignored %d", 1)
	if err := l.Sync(); err != nil {
		t.Errorf("nil Sync: %v", err)
	}
}
