// SPDX-License-Identifier: MPL-2.0

// Package logging builds the lifespand process logger from configuration and
// attaches it to coordinator phase transitions.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/invowk/lifespan/internal/config"
	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to w at the configured level and format.
// Structured formats carry RFC 3339 timestamps; the text format a short
// wall-clock time.
func New(w io.Writer, cfg config.LogConfig) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level.String())
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}

	switch cfg.Format {
	case config.LogFormatJSON:
		opts.Formatter = log.JSONFormatter
	case config.LogFormatLogfmt:
		opts.Formatter = log.LogfmtFormatter
	case config.LogFormatText, "":
		opts.Formatter = log.TextFormatter
		opts.TimeFormat = time.TimeOnly
	default:
		return nil, &config.InvalidLogFormatError{Value: cfg.Format}
	}

	return log.NewWithOptions(w, opts), nil
}

// Named returns a child of parent with the given prefix, e.g. "host".
func Named(parent *log.Logger, prefix string) *log.Logger {
	return parent.WithPrefix(prefix)
}

// PhaseObserver logs every coordinator transition. Failures log at error
// level; everything else at debug.
func PhaseObserver(logger *log.Logger) lifespan.Observer {
	return func(t lifespan.Transition) {
		if t.Err != nil {
			logger.Error("phase transition", "from", t.From, "to", t.To, "error", t.Err)
			return
		}
		logger.Debug("phase transition", "from", t.From, "to", t.To)
	}
}
