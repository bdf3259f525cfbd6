package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of event
type EventType string

const (
	// Session events
	EventTypeStateChanged    EventType = "state_changed"
	EventTypeIndexAdvanced   EventType = "index_advanced"
	EventTypeDatasetsChanged EventType = "datasets_changed"
	EventTypeLoadFailed      EventType = "load_failed"
)

// Event is the base interface for all session events
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BaseEvent) GetType() EventType      { return e.Type }
func (e *BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e *BaseEvent) GetID() string           { return e.ID }

// NewBaseEvent creates a new base event with generated ID and timestamp
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func generateEventID() string {
	return "evt_" + uuid.NewString()
}

// StateChangedEvent reports a command that changed session state
type StateChangedEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

// IndexAdvancedEvent reports a playback step
type IndexAdvancedEvent struct {
	BaseEvent
	Index   int  `json:"index"`
	Stopped bool `json:"stopped"`
}

// DatasetsChangedEvent reports additions or removals in the registry
type DatasetsChangedEvent struct {
	BaseEvent
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Count   int      `json:"count"`
}

// LoadFailedEvent reports a result file that could not be loaded
type LoadFailedEvent struct {
	BaseEvent
	Name  string `json:"name"`
	Error string `json:"error"`
}

// NewStateChangedEvent creates a state change event
func NewStateChangedEvent(reason string) *StateChangedEvent {
	return &StateChangedEvent{
		BaseEvent: NewBaseEvent(EventTypeStateChanged),
		Reason:    reason,
	}
}

// NewIndexAdvancedEvent creates a playback step event
func NewIndexAdvancedEvent(index int, stopped bool) *IndexAdvancedEvent {
	return &IndexAdvancedEvent{
		BaseEvent: NewBaseEvent(EventTypeIndexAdvanced),
		Index:     index,
		Stopped:   stopped,
	}
}

// NewDatasetsChangedEvent creates a registry change event
func NewDatasetsChangedEvent(added, removed []string, count int) *DatasetsChangedEvent {
	return &DatasetsChangedEvent{
		BaseEvent: NewBaseEvent(EventTypeDatasetsChanged),
		Added:     added,
		Removed:   removed,
		Count:     count,
	}
}

// NewLoadFailedEvent creates a load failure event
func NewLoadFailedEvent(name string, err error) *LoadFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &LoadFailedEvent{
		BaseEvent: NewBaseEvent(EventTypeLoadFailed),
		Name:      name,
		Error:     msg,
	}
}
