// Package mentions tracks the cross-room feed of messages that @-mention
// the logged-in moderator, with an unseen counter that survives
// disconnects without double-counting.
package mentions

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wrenna/modwatch/internal/chat"
	"github.com/wrenna/modwatch/internal/docstore"
	"github.com/wrenna/modwatch/internal/events"
	"github.com/wrenna/modwatch/internal/logging"
	"github.com/wrenna/modwatch/internal/models"
)

// FetchLimit caps the mention window; the cap is enforced by the query
// itself.
const FetchLimit = 5

// Tracker follows messages mentioning one username across all rooms. It is
// unarmed until a username is known; it arms exactly once, since the
// username is stable for the session.
type Tracker struct {
	store     docstore.Store
	publisher events.Publisher
	logger    zerolog.Logger

	mu                 sync.Mutex
	username           string
	mentions           []*chat.Message
	pending            int
	pendingInitialized bool
	paused             bool
	cancel             docstore.CancelFunc
}

// NewTracker creates an unarmed tracker.
func NewTracker(store docstore.Store, publisher events.Publisher) *Tracker {
	return &Tracker{
		store:     store,
		publisher: publisher,
		logger:    logging.WithFeed("mentions"),
	}
}

// Username returns the armed username, or "".
func (t *Tracker) Username() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.username
}

// Listening reports whether a live subscription is active.
func (t *Tracker) Listening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Paused reports whether the tracker is paused.
func (t *Tracker) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Mentions returns the current window, newest first.
func (t *Tracker) Mentions() []*chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*chat.Message, len(t.mentions))
	copy(out, t.mentions)
	return out
}

// Pending returns the unseen mention count.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// ClearPending resets the unseen count. Called when the moderator opens the
// mentions menu.
func (t *Tracker) ClearPending() {
	t.mu.Lock()
	changed := t.pending != 0
	t.pending = 0
	t.mu.Unlock()

	if changed {
		t.publishPending(0)
	}
}

// SetUsername arms the tracker and begins listening. The first non-empty
// username wins; later calls are ignored.
func (t *Tracker) SetUsername(ctx context.Context, username string) {
	if username == "" {
		return
	}

	t.mu.Lock()
	if t.username != "" {
		t.mu.Unlock()
		return
	}
	t.username = username
	paused := t.paused
	t.mu.Unlock()

	t.logger.Debug().Str("username", username).Msg("armed")
	if !paused {
		t.Listen(ctx)
	}
}

// Listen opens the live subscription. Requires an armed tracker; idempotent.
func (t *Tracker) Listen(ctx context.Context) {
	t.mu.Lock()
	if t.cancel != nil || t.username == "" {
		t.mu.Unlock()
		return
	}
	username := t.username
	t.mu.Unlock()

	q := docstore.Query{
		Collection: "chats",
		Group:      true,
		OrderBy:    "ts",
		Descending: true,
		Limit:      FetchLimit,
	}.Where("mentions", docstore.OpArrayContains, username)

	cancel, err := t.store.Subscribe(ctx, q, t.onSnapshot, t.onError)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to subscribe to mentions")
		return
	}

	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		cancel()
		return
	}
	t.cancel = cancel
	t.mu.Unlock()
}

// Unlisten cancels the subscription. Idempotent.
func (t *Tracker) Unlisten() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Pause tears down the subscription. No-op if already paused.
func (t *Tracker) Pause() {
	t.mu.Lock()
	if t.paused {
		t.mu.Unlock()
		return
	}
	t.paused = true
	t.mu.Unlock()

	t.Unlisten()
	t.publish(events.NewEvent(models.EventTypePaused, models.EntityTypeMentions, "mentions"))
}

// Resume re-establishes the subscription. No-op if not paused.
func (t *Tracker) Resume(ctx context.Context) {
	t.mu.Lock()
	if !t.paused {
		t.mu.Unlock()
		return
	}
	t.paused = false
	t.mu.Unlock()

	t.Listen(ctx)
	t.publish(events.NewEvent(models.EventTypeResumed, models.EntityTypeMentions, "mentions"))
}

// onSnapshot replaces the window. New arrivals are detected against the
// window shown before this update, not a separately maintained seen-set, so
// a message that scrolls out of the capped window and back in is not
// counted twice. The very first snapshot never counts as new.
func (t *Tracker) onSnapshot(snap docstore.Snapshot) {
	t.mu.Lock()

	existing := make(map[chat.Key]bool, len(t.mentions))
	for _, msg := range t.mentions {
		existing[msg.Key()] = true
	}

	newMentions := make([]*chat.Message, 0, len(snap.Docs))
	added := 0
	for _, doc := range snap.Docs {
		msg := chat.MessageFromDocument(doc)
		newMentions = append(newMentions, msg)
		if t.pendingInitialized && !existing[msg.Key()] {
			added++
		}
	}

	t.mentions = newMentions
	t.pending += added
	t.pendingInitialized = true
	pending := t.pending
	t.mu.Unlock()

	t.publish(events.NewEvent(models.EventTypeMentionsSnapshot, models.EntityTypeMentions, "mentions"))
	if added > 0 {
		t.publishPending(pending)
	}
}

func (t *Tracker) onError(err error) {
	t.logger.Error().Err(err).Msg("mentions subscription failed")
}

func (t *Tracker) publishPending(pending int) {
	event := events.NewEvent(models.EventTypeMentionsPending, models.EntityTypeMentions, "mentions")
	event.Payload = map[string]any{"pending": pending}
	t.publish(event)
}

func (t *Tracker) publish(event *models.Event) {
	if t.publisher != nil {
		t.publisher.Publish(event)
	}
}
