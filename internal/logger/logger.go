// Package logger builds the diagnostic logger. Diagnostics always go to stderr
// so that reports written to stdout stay machine readable.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
)

// Options controls how the logger is built.
type Options struct {
	Name   string
	Level  string
	JSON   bool
	Output io.Writer // defaults to os.Stderr
}

// New creates a new hclog.Logger instance.
func New(opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	name := opts.Name
	if name == "" {
		name = "codeaudit"
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		Level:       ParseLevel(opts.Level),
		JSONFormat:  opts.JSON,
		DisableTime: !opts.JSON,
		Output:      out,
	})
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() hclog.Logger {
	return hclog.NewNullLogger()
}

// ParseLevel converts a string level to hclog.Level, defaulting to INFO.
func ParseLevel(levelStr string) hclog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	case "OFF":
		return hclog.Off
	default:
		return hclog.Info
	}
}

// HclogAdapter adapts an hclog.Logger to the resty Logger interface.
type HclogAdapter struct {
	logger hclog.Logger
}

var _ resty.Logger = &HclogAdapter{} // Compile-time check

// NewHclogAdapter creates a new adapter that forwards messages to a hclog.Logger.
func NewHclogAdapter(logger hclog.Logger) *HclogAdapter {
	return &HclogAdapter{logger: logger}
}

// Errorf logs a message at error level.
func (a *HclogAdapter) Errorf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

// Warnf logs a message at warning level.
func (a *HclogAdapter) Warnf(format string, v ...any) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

// Debugf logs a message at debug level.
func (a *HclogAdapter) Debugf(format string, v ...any) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}
