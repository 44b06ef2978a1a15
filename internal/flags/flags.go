// Package flags tracks the cross-room feed of moderation flags raised
// against chat messages, with unseen counting and on-demand backfill of the
// flagged message itself.
package flags

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrenna/modwatch/internal/chat"
	"github.com/wrenna/modwatch/internal/docstore"
	"github.com/wrenna/modwatch/internal/events"
	"github.com/wrenna/modwatch/internal/logging"
	"github.com/wrenna/modwatch/internal/models"
)

const (
	// FetchLimit caps the flag query result set.
	FetchLimit = 200

	// RecentLimit caps the recent-flags slice exposed to the UI.
	RecentLimit = 5

	// flagDocumentID is the only document kind expected under a message's
	// moderation collection.
	flagDocumentID = "flags"
)

// Record is one flagged message: where it lives, how often it was flagged,
// and (once resolved) the message itself.
type Record struct {
	// Room is the room the flagged message was posted in.
	Room string

	// MessageID identifies the flagged message within the room.
	MessageID string

	// Timestamp is when the flag document was last updated.
	Timestamp time.Time

	// Count is how many times the message has been flagged.
	Count int64

	mu       sync.Mutex
	msg      *chat.Message
	inFlight bool
}

// Message returns the resolved flagged message, if cached.
func (r *Record) Message() (*chat.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msg, r.msg != nil
}

// Tracker follows the moderation-flag collection across all rooms.
type Tracker struct {
	store     docstore.Store
	publisher events.Publisher
	logger    zerolog.Logger

	mu                 sync.Mutex
	recent             []*Record
	byMessageID        map[string]*Record
	pending            int
	pendingInitialized bool
	paused             bool
	cancel             docstore.CancelFunc
}

// NewTracker creates a tracker. Call Listen to start.
func NewTracker(store docstore.Store, publisher events.Publisher) *Tracker {
	return &Tracker{
		store:       store,
		publisher:   publisher,
		logger:      logging.WithFeed("flags"),
		byMessageID: make(map[string]*Record),
	}
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

// Recent returns the newest flags, capped at RecentLimit.
func (t *Tracker) Recent() []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Record, len(t.recent))
	copy(out, t.recent)
	return out
}

// ByMessageID returns the flag record for a message, if any.
func (t *Tracker) ByMessageID(messageID string) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byMessageID[messageID]
	return rec, ok
}

// Pending returns the unseen flag count.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// ClearPending resets the unseen count.
func (t *Tracker) ClearPending() {
	t.mu.Lock()
	changed := t.pending != 0
	t.pending = 0
	t.mu.Unlock()

	if changed {
		t.publishPending(0)
	}
}

// Listen opens the live collection-group subscription. Idempotent.
func (t *Tracker) Listen(ctx context.Context) {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	q := docstore.Query{
		Collection: "mod",
		Group:      true,
		OrderBy:    "ts",
		Descending: true,
		Limit:      FetchLimit,
	}

	cancel, err := t.store.Subscribe(ctx, q, t.onSnapshot, t.onError)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to subscribe to flags")
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
	t.publish(events.NewEvent(models.EventTypePaused, models.EntityTypeFlags, "flags"))
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
	t.publish(events.NewEvent(models.EventTypeResumed, models.EntityTypeFlags, "flags"))
}

// Resolve returns the flagged message for a record. The happy path serves
// it from the record cache or an open channel. Otherwise a single point
// fetch is started in the background; at most one is in flight per record,
// and callers get (nil, false) until it completes.
func (t *Tracker) Resolve(ctx context.Context, registry *chat.Registry, rec *Record) (*chat.Message, bool) {
	rec.mu.Lock()
	if rec.msg != nil {
		msg := rec.msg
		rec.mu.Unlock()
		return msg, true
	}
	rec.mu.Unlock()

	if registry != nil {
		if ch, ok := registry.Channel(rec.Room); ok {
			if msg, ok := ch.MessageByID(rec.MessageID); ok {
				rec.mu.Lock()
				rec.msg = msg
				rec.mu.Unlock()
				return msg, true
			}
		}
	}

	rec.mu.Lock()
	if rec.inFlight {
		rec.mu.Unlock()
		return nil, false
	}
	rec.inFlight = true
	rec.mu.Unlock()

	go t.backfill(ctx, rec)
	return nil, false
}

// backfill performs the point fetch of the flagged message. A failure
// leaves the record unresolved; there is no retry loop.
func (t *Tracker) backfill(ctx context.Context, rec *Record) {
	path := docstore.NewPath("rooms", rec.Room, "chats", rec.MessageID)
	doc, err := t.store.Get(ctx, path)

	rec.mu.Lock()
	rec.inFlight = false
	rec.mu.Unlock()

	if err != nil {
		t.logger.Error().Err(err).Str("room", rec.Room).Str("message_id", rec.MessageID).Msg("failed to backfill flagged message")
		return
	}

	msg := chat.MessageFromDocument(*doc)
	rec.mu.Lock()
	rec.msg = msg
	rec.mu.Unlock()
}

// onSnapshot rebuilds the recent slice and the full index. A document of an
// unexpected kind is a contract violation from the upstream producer: the
// whole batch is discarded and reported loudly. A flag document whose
// ancestry cannot name a (room, message) pair is skipped on its own.
func (t *Tracker) onSnapshot(snap docstore.Snapshot) {
	newRecent := make([]*Record, 0, RecentLimit)
	newByID := make(map[string]*Record, len(snap.Docs))

	t.mu.Lock()

	added := 0
	for _, doc := range snap.Docs {
		if doc.Path.ID() != flagDocumentID {
			t.mu.Unlock()
			err := fmt.Errorf("unknown moderation document kind %q at %s", doc.Path.ID(), doc.Path)
			t.logger.Error().Err(err).Msg("discarding flag batch")
			t.publishError(err)
			return
		}

		room, messageID, ok := parseFlagPath(doc.Path)
		if !ok {
			t.logger.Debug().Str("path", doc.Path.String()).Msg("skipping flag with unresolvable ancestry")
			continue
		}

		rec := &Record{
			Room:      room,
			MessageID: messageID,
			Timestamp: doc.Time("ts"),
			Count:     doc.Int64("flags"),
		}
		if len(newRecent) < RecentLimit {
			newRecent = append(newRecent, rec)
		}
		newByID[messageID] = rec

		if t.pendingInitialized {
			if _, seen := t.byMessageID[messageID]; !seen {
				added++
			}
		}
	}

	t.recent = newRecent
	t.byMessageID = newByID
	t.pending += added
	t.pendingInitialized = true
	pending := t.pending
	t.mu.Unlock()

	t.publish(events.NewEvent(models.EventTypeFlagsSnapshot, models.EntityTypeFlags, "flags"))
	if added > 0 {
		t.publishPending(pending)
	}
}

// parseFlagPath derives the flagged message's identity from the flag
// document's ancestry: rooms/<room>/chats/<messageID>/mod/flags.
func parseFlagPath(p docstore.Path) (room, messageID string, ok bool) {
	if p.Len() != 6 {
		return "", "", false
	}
	if p[0] != "rooms" || p[2] != "chats" || p[4] != "mod" {
		return "", "", false
	}
	if p[1] == "" || p[3] == "" {
		return "", "", false
	}
	return p[1], p[3], true
}

func (t *Tracker) onError(err error) {
	t.logger.Error().Err(err).Msg("flags subscription failed")
}

func (t *Tracker) publishPending(pending int) {
	event := events.NewEvent(models.EventTypeFlagsPending, models.EntityTypeFlags, "flags")
	event.Payload = map[string]any{"pending": pending}
	t.publish(event)
}

func (t *Tracker) publishError(err error) {
	event := events.NewEvent(models.EventTypeError, models.EntityTypeFlags, "flags")
	event.Payload = map[string]any{"error": err.Error()}
	t.publish(event)
}

func (t *Tracker) publish(event *models.Event) {
	if t.publisher != nil {
		t.publisher.Publish(event)
	}
}
