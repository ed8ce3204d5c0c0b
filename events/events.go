package events

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const recentLimit = 50

// Log keeps the most recent events in memory and mirrors every event to a
// timestamped log file.
type Log struct {
	mutex  sync.Mutex
	events []Event
	file   *os.File
}

// Open creates logDir if needed and starts a new log file in it. An empty
// logDir keeps events in memory only.
func Open(logDir string) (*Log, error) {
	l := &Log{}
	if logDir == "" {
		return l, nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, fmt.Sprintf("events_%s.log", timestamp))

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l.file = f

	fmt.Fprintf(f, "=== Event Log Started at %s ===\n", time.Now().Format("2006-01-02 15:04:05"))
	return l, nil
}

// Path returns the log file path, or "" when logging to memory only.
func (l *Log) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// LogEvent records event. A zero timestamp is set to now.
func (l *Log) LogEvent(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.events = append(l.events, event)
	if len(l.events) > recentLimit {
		l.events = slices.Delete(l.events, 0, len(l.events)-recentLimit)
	}

	if l.file == nil {
		return nil
	}

	// Format: [timestamp] EVENT_TYPE: program_name (run) detail
	logLine := fmt.Sprintf("[%s] %s: %s",
		event.Timestamp.Format("2006-01-02 15:04:05"),
		strings.ToUpper(event.Type),
		event.Program)
	if event.RunID != "" {
		logLine += " (" + event.RunID + ")"
	}
	if event.Detail != "" {
		logLine += " " + event.Detail
	}

	if _, err := l.file.WriteString(logLine + "\n"); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}
	return nil
}

// GetEvents returns the recent events (last 50), oldest first.
func (l *Log) GetEvents() []Event {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return slices.Clone(l.events)
}

func (l *Log) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
