package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Journal event names.
const (
	EventStartup          = "startup"
	EventShutdown         = "shutdown"
	EventSecretsInstalled = "secrets_installed"
	EventNodeStarted      = "node_started"
	EventNodeStopped      = "node_stopped"
	EventLifecycleError   = "lifecycle_error"
	EventHealthChanged    = "health_changed"
)

// Journal appends one JSON line per supervisor event to a file.
// A nil Journal or one with an empty path records nothing.
type Journal struct {
	mu     sync.Mutex
	path   string
	format logrus.Formatter
	logger logrus.FieldLogger
}

func NewJournal(path string, logger logrus.FieldLogger) *Journal {
	if logger == nil {
		logger = Discard()
	}
	return &Journal{
		path: path,
		format: &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg:  "event",
				logrus.FieldKeyTime: "timestamp",
			},
			DisableHTMLEscape: true,
		},
		logger: logger,
	}
}

func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Record writes the event. Failures are logged at warn and otherwise ignored.
func (j *Journal) Record(event string, data Fields) {
	if j == nil || j.path == "" {
		return
	}
	if err := j.write(event, data); err != nil {
		j.logger.WithError(err).WithField("event", event).Warn("Failed to write journal entry")
	}
}

func (j *Journal) write(event string, data Fields) error {
	entry := &logrus.Entry{
		Data:    logrus.Fields{},
		Time:    time.Now().UTC(),
		Level:   logrus.InfoLevel,
		Message: event,
	}
	for k, v := range data {
		entry.Data[k] = v
	}

	line, err := j.format.Format(entry)
	if err != nil {
		return fmt.Errorf("format journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append journal: %w", err)
	}
	return f.Close()
}
