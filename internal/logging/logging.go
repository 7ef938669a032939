// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup sets the logrus level and formatter. format is "text" or "json".
func Setup(level, format string) error {
	return SetupOutput(os.Stderr, level, format)
}

// SetupOutput is Setup with an explicit destination.
func SetupOutput(out io.Writer, level, format string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q: must be 'text' or 'json'", format)
	}

	logrus.SetLevel(lvl)
	logrus.SetOutput(out)
	return nil
}
