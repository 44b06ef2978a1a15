package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenna/modwatch/internal/docstore"
)

func seedMessage(t *testing.T, store *docstore.Memory, room, id string, ts time.Time) {
	t.Helper()
	err := store.Put(docstore.NewPath("rooms", room, "chats", id), map[string]any{
		"id":       id,
		"room":     room,
		"username": "ada",
		"ts":       ts,
		"content":  "<p>hi</p>",
	})
	require.NoError(t, err)
}

func TestChannel_SnapshotRebuildsOrderedViews(t *testing.T) {
	store := docstore.NewMemory()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Seed out of timestamp order on purpose.
	seedMessage(t, store, "global", "b", base.Add(2*time.Second))
	seedMessage(t, store, "global", "a", base.Add(3*time.Second))
	seedMessage(t, store, "global", "c", base.Add(1*time.Second))

	ch := NewChannel(store, nil, "global")
	ch.Listen(context.Background())
	require.True(t, ch.Listening())

	msgs := ch.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.After(msgs[i-1].Timestamp), "messages must be sorted newest first")
	}

	// Index and ordered view are rebuilt together.
	for _, msg := range msgs {
		got, ok := ch.MessageByID(msg.ID)
		require.True(t, ok)
		assert.Equal(t, msg.ID, got.ID)
	}

	// A new message re-delivers the whole window.
	seedMessage(t, store, "global", "d", base.Add(5*time.Second))
	msgs = ch.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "d", msgs[0].ID)
}

func TestChannel_ListenIdempotent(t *testing.T) {
	store := docstore.NewMemory()
	ch := NewChannel(store, nil, "global")

	ch.Listen(context.Background())
	ch.Listen(context.Background())

	assert.Equal(t, 1, store.SubscriptionCount())
}

func TestChannel_PauseResume(t *testing.T) {
	store := docstore.NewMemory()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seedMessage(t, store, "global", "a", base)

	ch := NewChannel(store, nil, "global")
	ch.Listen(context.Background())

	// Pause fully tears down the subscription but keeps the cache.
	ch.Pause()
	assert.True(t, ch.Paused())
	assert.False(t, ch.Listening())
	assert.Equal(t, 0, store.SubscriptionCount())
	assert.Len(t, ch.Messages(), 1, "cached messages stay visible while paused")

	// Idempotent.
	ch.Pause()
	assert.True(t, ch.Paused())

	// Writes while paused are not observed.
	seedMessage(t, store, "global", "b", base.Add(time.Second))
	assert.Len(t, ch.Messages(), 1)

	// Resume re-subscribes and catches up from the full snapshot.
	ch.Resume(context.Background())
	assert.False(t, ch.Paused())
	assert.True(t, ch.Listening())
	assert.Equal(t, 1, store.SubscriptionCount())
	assert.Len(t, ch.Messages(), 2)

	// Idempotent: resuming an active channel must not double-subscribe.
	ch.Resume(context.Background())
	assert.Equal(t, 1, store.SubscriptionCount())
}

func TestChannel_UnlistenKeepsCache(t *testing.T) {
	store := docstore.NewMemory()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seedMessage(t, store, "global", "a", base)

	ch := NewChannel(store, nil, "global")
	ch.Listen(context.Background())
	ch.Unlisten()
	ch.Unlisten() // idempotent

	assert.False(t, ch.Listening())
	assert.Len(t, ch.Messages(), 1)
}

func TestMessageFromDocument_RoomFromAncestry(t *testing.T) {
	doc := docstore.Document{
		Path: docstore.ParsePath("rooms/global/chats/abc"),
		Data: map[string]any{
			"username": "ada",
			"mentions": []any{"grace"},
		},
	}

	msg := MessageFromDocument(doc)
	assert.Equal(t, "abc", msg.ID)
	assert.Equal(t, "global", msg.Room)
	assert.True(t, msg.Mentioned("grace"))
	assert.False(t, msg.Mentioned("ada"))
	assert.Equal(t, Key{Room: "global", ID: "abc"}, msg.Key())
}
