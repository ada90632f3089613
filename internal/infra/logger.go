// README: logrus logger built from the log config section.
package infra

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"tripflow/internal/config"
)

// NewLogger returns the logger and a closer for file output.
func NewLogger(cfg config.LogConfig) (*logrus.Logger, func() error, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	closer := func() error { return nil }
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f.Close
	}
	logger.SetOutput(out)
	return logger, closer, nil
}
