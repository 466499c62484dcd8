package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("stage started",
		String(FieldComponent, "workflow"),
		String(FieldStage, "extracting"),
		Int64(FieldJobID, 7),
	)

	line := buf.String()
	if !strings.Contains(line, "INFO workflow: stage started") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "stage=extracting") || !strings.Contains(line, "job_id=7") {
		t.Fatalf("missing attrs in line: %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Warn("tool output", String("detail", "exit status 2"))
	if !strings.Contains(buf.String(), `detail="exit status 2"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if parseLevel("nonsense") != slog.LevelInfo {
		t.Fatal("unknown level should default to info")
	}
	if parseLevel("debug") != slog.LevelDebug {
		t.Fatal("debug not parsed")
	}
}

func TestWithContextAddsNothingWithoutValues(t *testing.T) {
	logger := NewNop()
	if WithContext(nil, logger) != logger {
		t.Fatal("nil context should return same logger")
	}
}
