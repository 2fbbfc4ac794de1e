package store

import (
	"sync"
	"time"

	"d2r-save-guard/internal/logging"
)

// EventType identifies a store lifecycle notification
type EventType string

const (
	EventBackupStarted   EventType = "backup_started"
	EventBackupCompleted EventType = "backup_completed"
	EventBackupFailed    EventType = "backup_failed"
	EventBackupProgress  EventType = "backup_progress"
)

// Event is a lifecycle notification emitted synchronously from within the
// store's call stack. Receivers are responsible for marshaling to their own
// execution context; a slow handler slows the operation that emitted it.
type Event struct {
	Type        EventType `json:"type"`
	OperationID string    `json:"operation_id"`
	FileName    string    `json:"file_name"`
	Trigger     Trigger   `json:"trigger,omitempty"`
	Err         error     `json:"-"`
	// Progress fields, set only for EventBackupProgress.
	Current     int       `json:"current,omitempty"`
	Total       int       `json:"total,omitempty"`
	CurrentFile string    `json:"current_file,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventHandler receives store lifecycle events
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc adapts a function to the EventHandler interface
type EventHandlerFunc func(Event)

func (f EventHandlerFunc) HandleEvent(ev Event) {
	f(ev)
}

// eventNotifier fans events out to registered handlers, in registration
// order, on the calling goroutine.
type eventNotifier struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

func newEventNotifier() *eventNotifier {
	return &eventNotifier{}
}

func (n *eventNotifier) Subscribe(h EventHandler) {
	if h == nil {
		return
	}
	n.mu.Lock()
	n.handlers = append(n.handlers, h)
	n.mu.Unlock()
}

func (n *eventNotifier) publish(ev Event) {
	n.mu.RLock()
	handlers := n.handlers
	n.mu.RUnlock()

	for _, h := range handlers {
		h.HandleEvent(ev)
	}
}

// LogEventHandler bridges store events into the structured log so the watch
// daemon and CLI surface lifecycle notifications uniformly.
type LogEventHandler struct {
	logger *logging.Logger
}

// NewLogEventHandler creates an event handler that writes to logger
func NewLogEventHandler(logger *logging.Logger) *LogEventHandler {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &LogEventHandler{logger: logger}
}

func (h *LogEventHandler) HandleEvent(ev Event) {
	fields := map[string]interface{}{
		"operation_id": ev.OperationID,
		"file":         ev.FileName,
	}
	if ev.Trigger != "" {
		fields["trigger"] = string(ev.Trigger)
	}

	switch ev.Type {
	case EventBackupStarted:
		h.logger.WithFields(fields).Debug("Backup started")
	case EventBackupCompleted:
		h.logger.WithFields(fields).Info("Backup completed")
	case EventBackupFailed:
		if ev.Err != nil {
			fields["error"] = ev.Err.Error()
		}
		h.logger.WithFields(fields).Error("Backup failed")
	case EventBackupProgress:
		fields["current"] = ev.Current
		fields["total"] = ev.Total
		fields["current_file"] = ev.CurrentFile
		h.logger.WithFields(fields).Debug("Backup progress")
	}
}
