// Package logging provides the structured event logger shared by every
// scrape component. Events are JSON lines keyed by task and category so a
// single task's trail can be grepped out of a mixed stream.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log
type Category string

const (
	CategoryTask      Category = "task"
	CategorySession   Category = "session"
	CategoryNavigate  Category = "navigate"
	CategoryInput     Category = "input"
	CategoryWatch     Category = "watch"
	CategoryExtract   Category = "extract"
	CategoryStream    Category = "stream"
	CategoryDelivery  Category = "delivery"
	CategoryTransport Category = "transport"
	CategoryAPI       Category = "api"
)

// Event represents a structured log event
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Category  Category       `json:"category"`
	EventType string         `json:"type"`
	TaskID    string         `json:"task_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Logger writes structured events to one or more destinations.
type Logger struct {
	taskID    string
	sessionID string
	out       io.Writer
	errOut    io.Writer
	mu        *sync.Mutex
	minLevel  Level
}

// NewLogger creates a logger writing JSON lines to out. Error-level events
// are duplicated to errOut when it differs from out.
func NewLogger(out, errOut io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		out:      out,
		errOut:   errOut,
		mu:       &sync.Mutex{},
		minLevel: LevelInfo,
	}
}

// SetMinLevel sets the minimum log level
func (l *Logger) SetMinLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// WithTask returns a child logger that stamps every event with the task
// and session identifiers. The child shares the parent's destinations and
// mutex, so it is safe to use from listener goroutines.
func (l *Logger) WithTask(taskID, sessionID string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &Logger{
		taskID:    taskID,
		sessionID: sessionID,
		out:       l.out,
		errOut:    l.errOut,
		mu:        l.mu,
		minLevel:  l.minLevel,
	}
	return child
}

// Log writes an event to the configured destinations.
func (l *Logger) Log(event Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.TaskID == "" {
		event.TaskID = l.taskID
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	if !l.shouldLog(event.Level) {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	if l.out != nil {
		if _, err := l.out.Write(data); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	if event.Level == LevelError && l.errOut != nil && l.errOut != l.out {
		if _, err := l.errOut.Write(data); err != nil {
			return fmt.Errorf("failed to write error event: %w", err)
		}
	}
	return nil
}

func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[l.minLevel]
}

// Helper methods for common log patterns

// Debug logs a debug event
func (l *Logger) Debug(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelDebug, Category: category, EventType: eventType, Message: message, Details: details})
}

// Info logs an info event
func (l *Logger) Info(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelInfo, Category: category, EventType: eventType, Message: message, Details: details})
}

// Warn logs a warning event
func (l *Logger) Warn(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelWarn, Category: category, EventType: eventType, Message: message, Details: details})
}

// Error logs an error event
func (l *Logger) Error(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelError, Category: category, EventType: eventType, Message: message, Details: details})
}
