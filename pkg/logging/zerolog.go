package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// zerologHandler adapts zerolog.Logger to slog.Handler, the same adapter
// role the teacher's pkg/middleware/logger/zerolog_adapter.go plays for its
// own LoggerInterface — here wired directly into the stdlib logging
// interface pipeflow's core uses, so a project can opt into zerolog's
// colorized console output without changing a single call site.
type zerologHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
}

// NewZerologLogger builds a *slog.Logger backed by zerolog. When w is a
// terminal (detected with mattn/go-isatty, already a transitive teacher
// dependency promoted here to direct use), output is a human-friendly
// zerolog.ConsoleWriter; otherwise it is newline-delimited JSON, suitable
// for log aggregation.
func NewZerologLogger(w io.Writer, level slog.Level) *slog.Logger {
	var out io.Writer = w
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05"}
	}
	zl := zerolog.New(out).Level(slogLevelToZerolog(level)).With().Timestamp().Logger()
	return slog.New(&zerologHandler{logger: zl})
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= slogLevelToZerolog(level)
}

func (h *zerologHandler) Handle(_ context.Context, rec slog.Record) error {
	var evt *zerolog.Event
	switch {
	case rec.Level >= slog.LevelError:
		evt = h.logger.Error()
	case rec.Level >= slog.LevelWarn:
		evt = h.logger.Warn()
	case rec.Level >= slog.LevelInfo:
		evt = h.logger.Info()
	default:
		evt = h.logger.Debug()
	}
	for _, a := range h.attrs {
		evt = evt.Interface(a.Key, a.Value.Any())
	}
	rec.Attrs(func(a slog.Attr) bool {
		evt = evt.Interface(a.Key, a.Value.Any())
		return true
	})
	evt.Msg(rec.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	next = append(next, attrs...)
	return &zerologHandler{logger: h.logger, attrs: next}
}

func (h *zerologHandler) WithGroup(_ string) slog.Handler {
	return h
}

func slogLevelToZerolog(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
