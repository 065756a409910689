package eventstream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type logger interface {
	WithField(key string, value any) logger
	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)
}

// slogLogger adapts a *slog.Logger to the leveled logger used across the package.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l. A nil l falls back to slog.Default().
func NewSlogLogger(l *slog.Logger) logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) WithField(key string, value any) logger {
	return slogLogger{l: s.l.With(key, value)}
}

func (s slogLogger) log(level slog.Level, msg string) {
	s.l.Log(context.Background(), level, strings.TrimSuffix(msg, "\n"))
}

func (s slogLogger) Debug(args ...any) { s.log(slog.LevelDebug, fmt.Sprint(args...)) }
func (s slogLogger) Debugf(format string, args ...any) { s.log(slog.LevelDebug, fmt.Sprintf(format, args...)) }
func (s slogLogger) Debugln(args ...any) { s.log(slog.LevelDebug, fmt.Sprintln(args...)) }
func (s slogLogger) Info(args ...any) { s.log(slog.LevelInfo, fmt.Sprint(args...)) }
func (s slogLogger) Infof(format string, args ...any) { s.log(slog.LevelInfo, fmt.Sprintf(format, args...)) }
func (s slogLogger) Infoln(args ...any) { s.log(slog.LevelInfo, fmt.Sprintln(args...)) }
func (s slogLogger) Warn(args ...any) { s.log(slog.LevelWarn, fmt.Sprint(args...)) }
func (s slogLogger) Warnf(format string, args ...any) { s.log(slog.LevelWarn, fmt.Sprintf(format, args...)) }
func (s slogLogger) Warnln(args ...any) { s.log(slog.LevelWarn, fmt.Sprintln(args...)) }
func (s slogLogger) Error(args ...any) { s.log(slog.LevelError, fmt.Sprint(args...)) }
func (s slogLogger) Errorf(format string, args ...any) { s.log(slog.LevelError, fmt.Sprintf(format, args...)) }
func (s slogLogger) Errorln(args ...any) { s.log(slog.LevelError, fmt.Sprintln(args...)) }

type noopLogger struct{}

// NoopLogger discards everything.
var NoopLogger logger = noopLogger{}

func (n noopLogger) WithField(string, any) logger { return n }
func (noopLogger) Debug(...any) {}
func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Debugln(...any) {}
func (noopLogger) Info(...any) {}
func (noopLogger) Infof(string, ...any) {}
func (noopLogger) Infoln(...any) {}
func (noopLogger) Warn(...any) {}
func (noopLogger) Warnf(string, ...any) {}
func (noopLogger) Warnln(...any) {}
func (noopLogger) Error(...any) {}
func (noopLogger) Errorf(string, ...any) {}
func (noopLogger) Errorln(...any) {}
