package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields represents structured logging fields
type Fields = logrus.Fields

// New creates a JSON logger writing to stderr at the given level.
// An unknown level falls back to info and is reported as an error.
func New(level string) (*logrus.Logger, error) {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(level string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
		return logger, err
	}
	logger.SetLevel(lvl)
	return logger, nil
}

// WithService tags every entry with the service name.
func WithService(logger *logrus.Logger, service string) *logrus.Entry {
	return logger.WithField("service", service)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
