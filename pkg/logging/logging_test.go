package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestFromContext_NilContextReturnsDefault(t *testing.T) {
	if FromContext(nil) == nil {
		t.Error("FromContext(nil) should return the process default, not nil")
	}
}

func TestWithLogger_RoundTripsThroughContext(t *testing.T) {
	custom := slog.New(slog.DiscardHandler)
	ctx := WithLogger(context.Background(), custom)

	if got := FromContext(ctx); got != custom {
		t.Error("FromContext did not return the logger installed by WithLogger")
	}
}

func TestFromContext_ContextWithoutLoggerReturnsDefault(t *testing.T) {
	if got := FromContext(context.Background()); got == nil {
		t.Error("FromContext on a bare context should fall back to the default, not nil")
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := LevelFromString(in); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetDefault_ChangesFallbackLogger(t *testing.T) {
	custom := slog.New(slog.DiscardHandler)
	SetDefault(custom)
	defer SetDefault(slog.Default())

	if got := FromContext(nil); got != custom {
		t.Error("FromContext(nil) should reflect SetDefault's installed logger")
	}
}
