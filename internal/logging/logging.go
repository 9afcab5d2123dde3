// ABOUTME: Structured logger construction shared by the CLI, MCP server and benchmark
// ABOUTME: Wraps charmbracelet/log with level and format parsing
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// New builds a logger writing to w. format is text, json or logfmt.
func New(level, format string, w io.Writer) (*log.Logger, error) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var formatter log.Formatter
	switch strings.ToLower(format) {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	}), nil
}

// Discard returns a logger that drops everything. Used by tests and library callers.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Component returns a child logger tagged with a component prefix.
func Component(base *log.Logger, name string) *log.Logger {
	if base == nil {
		base = Discard()
	}
	return base.WithPrefix(name)
}
