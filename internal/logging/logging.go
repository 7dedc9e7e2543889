// Package logging configures the process logger of the gridformula
// command.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rockcut/gridformula/internal/config"
)

// New returns a logger configured from c. The cleanup function closes the
// log file, if one was opened.
func New(c *config.Logger) (*logrus.Logger, func(), error) {
	l := logrus.New()
	cleanup := func() {}

	level, err := logrus.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return nil, cleanup, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	l.SetLevel(level)

	switch c.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch c.Output {
	case "stdout":
		l.SetOutput(os.Stdout)
	case "file":
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to open log file: %w", err)
		}
		l.SetOutput(f)
		cleanup = func() { _ = f.Close() }
	default:
		l.SetOutput(os.Stderr)
	}
	return l, cleanup, nil
}

// Discard returns a logger that writes nothing.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
