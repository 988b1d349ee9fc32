package pathfinder

import (
	"fmt"
	"io"
	"os"
)

// LogLevel controls the frequency and type of logger output, mirroring
// lbfgsb.LogLevel: spec.md §9 asks for exactly this — "a clean
// reimplementation should make [debug toggles] runtime log-level choices
// on the injected logger".
type LogLevel int

const (
	LogNoop    LogLevel = -1
	LogLast    LogLevel = 0
	LogEval    LogLevel = 1
	LogTrace   LogLevel = 99
	LogVerbose LogLevel = 101
)

// Logger handles progress/diagnostic output for a Pathfinder run. The
// writers must be safe if shared across concurrent runs; Logger itself
// does no locking (the driver is single-threaded, spec.md §5).
type Logger struct {
	Level LogLevel
	Msg   io.Writer // human-readable progress messages
	Out   io.Writer // tabular per-iteration diagnostics
}

func (l *Logger) normalize() {
	if l == nil {
		return
	}
	if l.Msg == nil {
		l.Msg = os.Stdout
	}
	if l.Out == nil {
		l.Out = os.Stderr
	}
}

func (l *Logger) enable(level LogLevel) bool {
	return l != nil && l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if l.Msg == nil {
		return
	}
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

func (l *Logger) out(format string, a ...any) {
	if l.Out == nil {
		return
	}
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Out, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Out, format)
	}
}
