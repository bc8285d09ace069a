// control/logger.go
// Author: momentics <momentics@gmail.com>
//
// Structured JSON logging shared by every component.

package control

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type passed between components.
type Logger = logiface.Logger[*stumpy.Event]

// NewLogger builds a JSON logger writing to w (stderr when nil).
func NewLogger(level logiface.Level, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
}

// NopLogger returns a logger that drops everything.
func NopLogger() *Logger {
	return NewLogger(logiface.LevelDisabled, io.Discard)
}

// Component derives a sub-logger tagged with the component name.
func Component(l *Logger, name string) *Logger {
	if l == nil {
		return NopLogger()
	}
	return l.Clone().Str("component", name).Logger()
}

// ParseLevel maps a level keyword to a logiface level.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "informational":
		return logiface.LevelInformational, nil
	case "trace":
		return logiface.LevelTrace, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "warn", "warning":
		return logiface.LevelWarning, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "emerg", "emergency":
		return logiface.LevelEmergency, nil
	case "off", "disabled", "none":
		return logiface.LevelDisabled, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
}
