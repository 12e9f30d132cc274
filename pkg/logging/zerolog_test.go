package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewZerologLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, slog.LevelInfo)

	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, `"message":"hello"`) {
		t.Errorf("expected JSON-encoded message, got %q", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("expected attribute to be encoded, got %q", out)
	}
}

func TestNewZerologLogger_RespectsLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, slog.LevelWarn)

	logger.Debug("should not appear")
	logger.Info("also should not appear")
	logger.Warn("this one should")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("debug/info below the configured level leaked through: %q", out)
	}
	if !strings.Contains(out, "this one should") {
		t.Errorf("warn at the configured level was dropped: %q", out)
	}
}

func TestNewZerologLogger_AllLevelsReachTheSinkAtDebugThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, slog.LevelDebug)

	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		buf.Reset()
		logger.Log(nil, level, "msg")
		if buf.Len() == 0 {
			t.Errorf("level %v produced no output at debug threshold", level)
		}
	}
}
