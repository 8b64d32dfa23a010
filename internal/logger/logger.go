// Package logger builds the structured loggers injected into parley's services.
package logger

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// New creates a logger writing to w at the named level. Unknown levels fall
// back to info.
func New(w io.Writer, level string) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(level),
		ReportTimestamp: false,
	})
	l.SetStyles(styles())
	return l
}

// Discard returns a logger that drops everything. Services use it when no
// logger is supplied.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Component derives a prefixed logger for one subsystem ("scheduler", "turns").
func Component(base *log.Logger, name string) *log.Logger {
	if base == nil {
		return Discard()
	}
	return base.WithPrefix(name)
}

func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

func styles() *log.Styles {
	s := log.DefaultStyles()

	s.Keys["agent"] = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	s.Keys["conversation"] = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	s.Keys["priority"] = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	s.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	s.Values["error"] = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	return s
}
