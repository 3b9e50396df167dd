package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLoggerInfoWritesLevelAndMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)

	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, `"level":"info"`) {
		t.Errorf("expected info level in output, got: %s", output)
	}
	if !strings.Contains(output, "test message") {
		t.Error("expected log to contain 'test message'")
	}
}

func TestLoggerDebugFilteredAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)

	logger.Debug("debug message")

	if buf.Len() != 0 {
		t.Errorf("expected no output for DEBUG when level is INFO, got: %s", buf.String())
	}
}

func TestLoggerDebugEmittedAtDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DEBUG, &buf)

	logger.Debug("debug message")

	if !strings.Contains(buf.String(), "debug message") {
		t.Error("expected log to contain 'debug message'")
	}
}

func TestLoggerWithFieldsAttachesToEveryEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)
	child := logger.WithFields(map[string]interface{}{"component": "hnsw", "shard": 3})

	child.Info("ready")

	output := buf.String()
	if !strings.Contains(output, `"component":"hnsw"`) {
		t.Errorf("expected component field in output, got: %s", output)
	}
	if !strings.Contains(output, `"shard":3`) {
		t.Errorf("expected shard field in output, got: %s", output)
	}
}

func TestLoggerWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)
	logger.WithField("x", 1)

	logger.Info("plain")
	if strings.Contains(buf.String(), `"x":1`) {
		t.Error("expected parent logger to be unaffected by a derived WithField call")
	}
}

func TestLoggerInfofFormatsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)

	logger.Infof("formatted %s %d", "message", 123)

	if !strings.Contains(buf.String(), "formatted message 123") {
		t.Error("expected formatted message in output")
	}
}

func TestLoggerOperationRecordsSuccess(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)

	err := logger.Operation("rebuild_index", func() error { return nil })
	if err != nil {
		t.Fatalf("operation: %v", err)
	}
	if !strings.Contains(buf.String(), "rebuild_index") {
		t.Error("expected operation name in log output")
	}
}

func TestLoggerOperationRecordsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)
	want := errors.New("boom")

	got := logger.Operation("rebuild_index", func() error { return want })
	if got != want {
		t.Fatalf("expected Operation to return the underlying error, got %v", got)
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Error("expected failure message in log output")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"ERROR":   ERROR,
		"fatal":   FATAL,
		"bogus":   INFO,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
