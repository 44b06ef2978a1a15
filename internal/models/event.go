package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes events on the console bus.
type EventType string

const (
	// Channel events
	EventTypeChannelSnapshot EventType = "channel.snapshot"
	EventTypeChannelOpened   EventType = "channel.opened"
	EventTypeChannelClosed   EventType = "channel.closed"

	// Tracker events
	EventTypeMentionsSnapshot EventType = "mentions.snapshot"
	EventTypeMentionsPending  EventType = "mentions.pending_changed"
	EventTypeFlagsSnapshot    EventType = "flags.snapshot"
	EventTypeFlagsPending     EventType = "flags.pending_changed"

	// Lifecycle events
	EventTypePaused  EventType = "tracker.paused"
	EventTypeResumed EventType = "tracker.resumed"

	// Idle events
	EventTypeIdleChanged EventType = "idle.changed"

	// System events
	EventTypeError EventType = "error"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeChannel  EntityType = "channel"
	EntityTypeRegistry EntityType = "registry"
	EntityTypeMentions EntityType = "mentions"
	EntityTypeFlags    EntityType = "flags"
	EntityTypeIdle     EntityType = "idle"
	EntityTypeSystem   EntityType = "system"
)

// Event represents a state-change notification delivered to console observers.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity (room name, feed name).
	EntityID string `json:"entity_id"`

	// Payload carries optional event-specific data.
	Payload map[string]any `json:"payload,omitempty"`
}

// PayloadJSON serializes the payload for persistence or transport.
func (e *Event) PayloadJSON() (string, error) {
	if e.Payload == nil {
		return "", nil
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
