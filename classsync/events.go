package classsync

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine event types delivered to subscribers.
const (
	EventGroupRegistered  = "group_registered"
	EventConflictDetected = "conflict_detected"
)

// EngineEvent is a notification about something the engine did.
type EngineEvent struct {
	Type      string        `json:"type"`
	GroupID   string        `json:"group_id,omitempty"`
	Conflict  *SyncConflict `json:"conflict,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// EngineEventHandler receives engine events. Handlers run synchronously
// on the emitting goroutine and must not block.
type EngineEventHandler func(EngineEvent)

// eventEmitter fans engine events out to registered handlers.
type eventEmitter struct {
	mu       sync.RWMutex
	handlers map[string]map[string]EngineEventHandler // event type -> handler id -> handler
}

func newEventEmitter() *eventEmitter {
	return &eventEmitter{handlers: make(map[string]map[string]EngineEventHandler)}
}

func (e *eventEmitter) add(eventType string, handler EngineEventHandler) string {
	id := uuid.NewString()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers[eventType] == nil {
		e.handlers[eventType] = make(map[string]EngineEventHandler)
	}
	e.handlers[eventType][id] = handler
	return id
}

func (e *eventEmitter) remove(eventType, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if handlers, ok := e.handlers[eventType]; ok {
		delete(handlers, id)
	}
}

func (e *eventEmitter) emit(event EngineEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	e.mu.RLock()
	handlers := make([]EngineEventHandler, 0, len(e.handlers[event.Type]))
	for _, h := range e.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
