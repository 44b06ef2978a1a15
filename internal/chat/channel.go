package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wrenna/modwatch/internal/docstore"
	"github.com/wrenna/modwatch/internal/events"
	"github.com/wrenna/modwatch/internal/logging"
	"github.com/wrenna/modwatch/internal/models"
)

// MessageFetchLimit caps the live message window per room.
const MessageFetchLimit = 200

// Channel mirrors one room's message stream. While paused the cached
// messages stay visible but the live subscription is fully torn down, which
// is the point: pausing sheds connection load, not just UI updates.
type Channel struct {
	store     docstore.Store
	publisher events.Publisher
	name      string
	logger    zerolog.Logger

	mu       sync.Mutex
	paused   bool
	messages []*Message
	byID     map[string]*Message
	cancel   docstore.CancelFunc
}

// NewChannel creates a channel manager for the named room. It does not start
// listening; call Listen.
func NewChannel(store docstore.Store, publisher events.Publisher, name string) *Channel {
	return &Channel{
		store:     store,
		publisher: publisher,
		name:      name,
		logger:    logging.WithRoom(name),
		byID:      make(map[string]*Message),
	}
}

// Name returns the room name.
func (c *Channel) Name() string {
	return c.name
}

// Listening reports whether a live subscription is active.
func (c *Channel) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Paused reports whether the channel is paused.
func (c *Channel) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Messages returns the current message window, newest first.
func (c *Channel) Messages() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// MessageByID returns the cached message with the given id, if present.
func (c *Channel) MessageByID(id string) (*Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.byID[id]
	return msg, ok
}

// Listen opens the live subscription for this room. Idempotent.
func (c *Channel) Listen(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	q := docstore.Query{
		Parent:     docstore.NewPath("rooms", c.name),
		Collection: "chats",
		OrderBy:    "ts",
		Descending: true,
		Limit:      MessageFetchLimit,
	}

	cancel, err := c.store.Subscribe(ctx, q, c.onSnapshot, c.onError)
	if err != nil {
		// Transport errors are logged and swallowed; a later resume or
		// close/reopen is the only recovery path.
		c.logger.Error().Err(err).Msg("failed to subscribe to room")
		return
	}

	c.mu.Lock()
	if c.cancel != nil {
		// Lost a race with a concurrent Listen; keep the first subscription.
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Debug().Msg("listening")
}

// Unlisten cancels the live subscription. Idempotent. Cached messages are
// kept and remain visible, stale, until the next snapshot.
func (c *Channel) Unlisten() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.logger.Debug().Msg("unlistened")
	}
}

// Pause tears down the subscription without discarding cached messages.
// No-op if already paused.
func (c *Channel) Pause() {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = true
	c.mu.Unlock()

	c.Unlisten()
	c.publish(events.NewEvent(models.EventTypePaused, models.EntityTypeChannel, c.name))
}

// Resume re-establishes the subscription. No-op if not paused.
func (c *Channel) Resume(ctx context.Context) {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	c.mu.Unlock()

	c.Listen(ctx)
	c.publish(events.NewEvent(models.EventTypeResumed, models.EntityTypeChannel, c.name))
}

// onSnapshot rebuilds the ordered window and the id index together from the
// full result set.
func (c *Channel) onSnapshot(snap docstore.Snapshot) {
	newMessages := make([]*Message, 0, len(snap.Docs))
	newByID := make(map[string]*Message, len(snap.Docs))
	for _, doc := range snap.Docs {
		msg := MessageFromDocument(doc)
		newMessages = append(newMessages, msg)
		newByID[msg.ID] = msg
	}
	sortMessagesDesc(newMessages)

	c.mu.Lock()
	c.messages = newMessages
	c.byID = newByID
	c.mu.Unlock()

	c.publish(events.NewEvent(models.EventTypeChannelSnapshot, models.EntityTypeChannel, c.name))
}

func (c *Channel) onError(err error) {
	c.logger.Error().Err(err).Msg("room subscription failed")
}

func (c *Channel) publish(event *models.Event) {
	if c.publisher != nil {
		c.publisher.Publish(event)
	}
}
