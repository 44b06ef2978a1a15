package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wrenna/modwatch/internal/docstore"
	"github.com/wrenna/modwatch/internal/events"
	"github.com/wrenna/modwatch/internal/logging"
	"github.com/wrenna/modwatch/internal/models"
)

// Registry owns the dynamic set of open channels plus the catalog of rooms
// that exist. Channels are constructed exactly once per open room; closing a
// room tears its subscription down and discards the cached messages.
type Registry struct {
	store     docstore.Store
	publisher events.Publisher
	logger    zerolog.Logger

	mu             sync.Mutex
	channels       map[string]*Channel
	availableRooms []string
}

// NewRegistry creates a registry and performs the one-time catalog fetch of
// known room names. A catalog failure is logged and leaves the catalog
// empty; open/close of individual rooms is unaffected.
func NewRegistry(ctx context.Context, store docstore.Store, publisher events.Publisher) *Registry {
	r := &Registry{
		store:     store,
		publisher: publisher,
		logger:    logging.Component("chat-registry"),
		channels:  make(map[string]*Channel),
	}

	docs, err := store.ListCollection(ctx, docstore.NewPath("rooms"))
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to fetch room catalog")
		return r
	}

	rooms := make([]string, 0, len(docs))
	for _, doc := range docs {
		rooms = append(rooms, doc.Path.ID())
	}
	sort.Strings(rooms)
	r.availableRooms = rooms

	r.logger.Debug().Int("rooms", len(rooms)).Msg("room catalog loaded")
	return r
}

// AvailableRooms returns the sorted catalog of known room names.
func (r *Registry) AvailableRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.availableRooms))
	copy(out, r.availableRooms)
	return out
}

// Channel returns the open channel for the room, if any.
func (r *Registry) Channel(room string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[room]
	return ch, ok
}

// OpenRooms returns the names of rooms currently open, sorted.
func (r *Registry) OpenRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.channels))
	for name := range r.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Listen returns the existing channel for the room, or constructs one,
// starts it listening, and registers it. Repeated calls return the same
// instance.
func (r *Registry) Listen(ctx context.Context, room string) *Channel {
	r.mu.Lock()
	if ch, ok := r.channels[room]; ok {
		r.mu.Unlock()
		return ch
	}
	ch := NewChannel(r.store, r.publisher, room)
	r.channels[room] = ch
	r.mu.Unlock()

	ch.Listen(ctx)
	r.publish(events.NewEvent(models.EventTypeChannelOpened, models.EntityTypeChannel, room))
	return ch
}

// Unlisten tears the channel down entirely and removes it. No-op if the
// room is not open.
func (r *Registry) Unlisten(room string) {
	r.mu.Lock()
	ch, ok := r.channels[room]
	if ok {
		delete(r.channels, room)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	ch.Unlisten()
	r.publish(events.NewEvent(models.EventTypeChannelClosed, models.EntityTypeChannel, room))
}

// Pause broadcasts pause to every open channel.
func (r *Registry) Pause() {
	for _, ch := range r.snapshotChannels() {
		ch.Pause()
	}
}

// Resume broadcasts resume to every open channel.
func (r *Registry) Resume(ctx context.Context) {
	for _, ch := range r.snapshotChannels() {
		ch.Resume(ctx)
	}
}

// snapshotChannels copies the channel set so broadcasts run outside the lock.
func (r *Registry) snapshotChannels() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

func (r *Registry) publish(event *models.Event) {
	if r.publisher != nil {
		r.publisher.Publish(event)
	}
}
