// Package logging builds the logrus loggers used across the catalog.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/config"
	"github.com/partcat/partcat/pkg/types"
)

// New returns a logger configured from cfg writing to out (stderr if nil).
func New(cfg config.LoggingConfig, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Component returns an entry tagged with the component name.
func Component(logger logrus.FieldLogger, name string) *logrus.Entry {
	if logger == nil {
		logger = Discard()
	}
	return logger.WithField("component", name)
}

// WithRequest adds the request identity carried by ctx to entry.
func WithRequest(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	rc := types.RequestContextFrom(ctx)
	fields := logrus.Fields{"request_id": rc.RequestID}
	if rc.UserName != "" {
		fields["user"] = rc.UserName
	}
	if rc.ClientAppName != "" {
		fields["client_app"] = rc.ClientAppName
	}
	if rc.TraceID != "" {
		fields["trace_id"] = rc.TraceID
	}
	return entry.WithContext(ctx).WithFields(fields)
}
