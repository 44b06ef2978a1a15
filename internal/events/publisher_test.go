package events

import (
	"testing"

	"github.com/wrenna/modwatch/internal/models"
)

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		event  *models.Event
		want   bool
	}{
		{
			name:   "empty filter matches any event",
			filter: Filter{},
			event: &models.Event{
				Type:       models.EventTypeChannelSnapshot,
				EntityType: models.EntityTypeChannel,
				EntityID:   "global",
			},
			want: true,
		},
		{
			name:   "nil event returns false",
			filter: Filter{},
			event:  nil,
			want:   false,
		},
		{
			name: "event type filter matches",
			filter: Filter{
				EventTypes: []models.EventType{models.EventTypeChannelSnapshot},
			},
			event: &models.Event{
				Type:       models.EventTypeChannelSnapshot,
				EntityType: models.EntityTypeChannel,
				EntityID:   "global",
			},
			want: true,
		},
		{
			name: "event type filter rejects non-matching",
			filter: Filter{
				EventTypes: []models.EventType{models.EventTypeChannelSnapshot},
			},
			event: &models.Event{
				Type:       models.EventTypeChannelClosed,
				EntityType: models.EntityTypeChannel,
				EntityID:   "global",
			},
			want: false,
		},
		{
			name: "multiple event types - matches any",
			filter: Filter{
				EventTypes: []models.EventType{
					models.EventTypeMentionsPending,
					models.EventTypeFlagsPending,
				},
			},
			event: &models.Event{
				Type:       models.EventTypeFlagsPending,
				EntityType: models.EntityTypeFlags,
				EntityID:   "flags",
			},
			want: true,
		},
		{
			name: "entity type filter rejects non-matching",
			filter: Filter{
				EntityTypes: []models.EntityType{models.EntityTypeMentions},
			},
			event: &models.Event{
				Type:       models.EventTypeChannelSnapshot,
				EntityType: models.EntityTypeChannel,
				EntityID:   "global",
			},
			want: false,
		},
		{
			name: "entity ID filter matches",
			filter: Filter{
				EntityID: "global",
			},
			event: &models.Event{
				Type:       models.EventTypeChannelSnapshot,
				EntityType: models.EntityTypeChannel,
				EntityID:   "global",
			},
			want: true,
		},
		{
			name: "entity ID filter rejects non-matching",
			filter: Filter{
				EntityID: "global",
			},
			event: &models.Event{
				Type:       models.EventTypeChannelSnapshot,
				EntityType: models.EntityTypeChannel,
				EntityID:   "trade",
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.event); got != tt.want {
				t.Errorf("Filter.Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInMemoryPublisher_PublishAndSubscribe(t *testing.T) {
	p := NewInMemoryPublisher()

	var received []*models.Event
	err := p.Subscribe("sub-1", Filter{
		EntityTypes: []models.EntityType{models.EntityTypeChannel},
	}, func(event *models.Event) {
		received = append(received, event)
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	p.Publish(NewEvent(models.EventTypeChannelSnapshot, models.EntityTypeChannel, "global"))
	p.Publish(NewEvent(models.EventTypeMentionsPending, models.EntityTypeMentions, "mentions"))

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].EntityID != "global" {
		t.Errorf("unexpected entity ID: %s", received[0].EntityID)
	}
}

func TestInMemoryPublisher_SubscribeErrors(t *testing.T) {
	p := NewInMemoryPublisher()

	if err := p.Subscribe("", Filter{}, func(*models.Event) {}); err != ErrInvalidSubscriptionID {
		t.Errorf("expected ErrInvalidSubscriptionID, got %v", err)
	}
	if err := p.Subscribe("sub-1", Filter{}, nil); err != ErrNilHandler {
		t.Errorf("expected ErrNilHandler, got %v", err)
	}

	if err := p.Subscribe("sub-1", Filter{}, func(*models.Event) {}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := p.Subscribe("sub-1", Filter{}, func(*models.Event) {}); err != ErrSubscriptionExists {
		t.Errorf("expected ErrSubscriptionExists, got %v", err)
	}
}

func TestInMemoryPublisher_Unsubscribe(t *testing.T) {
	p := NewInMemoryPublisher()

	if err := p.Unsubscribe("missing"); err != ErrSubscriptionNotFound {
		t.Errorf("expected ErrSubscriptionNotFound, got %v", err)
	}

	count := 0
	if err := p.Subscribe("sub-1", Filter{}, func(*models.Event) { count++ }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if p.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", p.SubscriberCount())
	}

	if err := p.Unsubscribe("sub-1"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	p.Publish(NewEvent(models.EventTypeChannelSnapshot, models.EntityTypeChannel, "global"))

	if count != 0 {
		t.Errorf("unsubscribed handler was invoked")
	}
}
