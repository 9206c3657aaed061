package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Format selects how log entries are rendered.
type Format string

const (
	// FormatJSON renders one JSON object per entry; used by the server.
	FormatJSON Format = "json"
	// FormatText renders human readable entries; used by the CLI on stderr.
	FormatText Format = "text"
)

// NewLogger constructs a logrus logger configured with JSON output and the provided log level.
func NewLogger(level string) (*logrus.Logger, error) {
	return New(Options{Level: level, Format: FormatJSON, Output: os.Stdout})
}

// Options controls logger construction.
type Options struct {
	Level  string
	Format Format
	Output io.Writer
}

// New builds a logger from explicit options.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetReportCaller(false)
	logger.SetLevel(logrus.InfoLevel)

	switch opts.Format {
	case FormatText:
		logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
			DisableQuote:     true,
		})
	case FormatJSON, "":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return nil, eris.Errorf("unsupported log format: %s", opts.Format)
	}

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}

	if opts.Level == "" {
		return logger, nil
	}

	parsedLevel, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		return nil, eris.Wrapf(err, "invalid log level: %s", opts.Level)
	}

	logger.SetLevel(parsedLevel)
	return logger, nil
}

// Discard returns a logger that drops every entry.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
