package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nvandessel/substrate/internal/events"
)

// EventLogFile is the file name EventLog writes under its directory.
const EventLogFile = "events.jsonl"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("logging: event log closed")

// EventLog writes engine events to a JSONL file, one event per line. It is
// safe for concurrent use and implements events.Sink. Marshal and write
// failures are returned so the engine can count them.
type EventLog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

var _ events.Sink = (*EventLog)(nil)

// NewEventLog opens dir/events.jsonl for append, creating dir if needed.
func NewEventLog(dir string) (*EventLog, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("logging: create event dir: %w", err)
	}

	path := filepath.Join(dir, EventLogFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("logging: open event log: %w", err)
	}

	return &EventLog{file: f, path: path}, nil
}

// Path returns the file being written.
func (l *EventLog) Path() string { return l.path }

// Publish writes e as a single JSONL line.
func (l *EventLog) Publish(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("logging: marshal %s event: %w", e.Kind, err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrClosed
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("logging: write event: %w", err)
	}
	return nil
}

// Close closes the file. Further calls are no-ops.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
