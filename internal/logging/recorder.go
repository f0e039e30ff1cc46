package logging

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Entry struct {
	TimeStamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Recorder is a logrus hook keeping the most recent entries in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
	level   logrus.Level
}

// NewRecorder keeps at most maxSize entries at or above level.
// A non-positive maxSize disables recording.
func NewRecorder(maxSize int, level logrus.Level) *Recorder {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Recorder{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
		level:   level,
	}
}

func (r *Recorder) Levels() []logrus.Level {
	return logrus.AllLevels[:r.level+1]
}

// Fire records the entry, dropping the oldest once full.
func (r *Recorder) Fire(e *logrus.Entry) error {
	if r.maxSize == 0 || e.Level > r.level {
		return nil
	}

	var fields map[string]any
	if len(e.Data) > 0 {
		fields = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			fields[k] = v
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.maxSize {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, Entry{
		TimeStamp: e.Time.UTC(),
		Level:     e.Level.String(),
		Message:   e.Message,
		Fields:    fields,
	})
	return nil
}

// GetLast returns up to n of the newest entries, oldest first.
// The returned slice and field maps are copies.
func (r *Recorder) GetLast(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}

	start := len(r.entries) - n
	out := make([]Entry, n)
	for i, e := range r.entries[start:] {
		if e.Fields != nil {
			fields := make(map[string]any, len(e.Fields))
			for k, v := range e.Fields {
				fields[k] = v
			}
			e.Fields = fields
		}
		out[i] = e
	}
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
