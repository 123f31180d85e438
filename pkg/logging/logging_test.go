package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestInitAndFilter(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Debug("test", "should be filtered")
	Info("test", "hello %s", "world")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Error("debug message leaked through info filter")
	}
	if !strings.Contains(out, "hello world") {
		t.Errorf("expected info message in output, got: %q", out)
	}
	if !strings.Contains(out, "subsystem=test") {
		t.Errorf("expected subsystem attribute in output, got: %q", out)
	}
}

func TestErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("test", errors.New("boom"), "operation failed")

	out := buf.String()
	if !strings.Contains(out, "boom") {
		t.Errorf("expected wrapped error in output, got: %q", out)
	}
}
