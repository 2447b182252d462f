package dlog

import (
	"io"
	"log"
	"os"
)

type Logger struct {
	*log.Logger
}

type LoggerOption struct {
	f func(*Logger)
}

// NewLogger wraps the default Go log package with Debug functions that
// are compiled in only when building with the debug tag; release builds
// carry no-ops so debug call sites cost nothing in production.
func NewLogger(options ...LoggerOption) *Logger {
	l := &Logger{log.New(os.Stderr, "", log.LstdFlags)}

	for _, option := range options {
		option.f(l)
	}

	return l
}

func LoggerSetOutput(w io.Writer) LoggerOption {
	return LoggerOption{
		func(l *Logger) {
			l.SetOutput(w)
		},
	}
}

func LoggerSetPrefix(p string) LoggerOption {
	return LoggerOption{
		func(l *Logger) {
			l.SetPrefix(p)
		},
	}
}

func LoggerSetFlags(flag int) LoggerOption {
	return LoggerOption{
		func(l *Logger) {
			l.SetFlags(flag)
		},
	}
}
