package mentions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenna/modwatch/internal/docstore"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedMention(t *testing.T, store *docstore.Memory, room, id string, ts time.Time, mentions ...string) {
	t.Helper()
	err := store.Put(docstore.NewPath("rooms", room, "chats", id), map[string]any{
		"id":       id,
		"room":     room,
		"username": "someone",
		"ts":       ts,
		"content":  "<p>hey</p>",
		"mentions": mentions,
	})
	require.NoError(t, err)
}

func TestTracker_FirstSnapshotNeverCounts(t *testing.T) {
	store := docstore.NewMemory()
	seedMention(t, store, "global", "a", base.Add(1*time.Second), "ada")
	seedMention(t, store, "trade", "b", base.Add(2*time.Second), "ada")

	tr := NewTracker(store, nil)
	tr.SetUsername(context.Background(), "ada")

	require.True(t, tr.Listening())
	assert.Len(t, tr.Mentions(), 2)
	assert.Equal(t, 0, tr.Pending(), "initial load must not count as new")
}

func TestTracker_CountsOnlyNewIDs(t *testing.T) {
	store := docstore.NewMemory()
	seedMention(t, store, "global", "a", base.Add(1*time.Second), "ada")

	tr := NewTracker(store, nil)
	tr.SetUsername(context.Background(), "ada")
	require.Equal(t, 0, tr.Pending())

	seedMention(t, store, "global", "b", base.Add(2*time.Second), "ada")
	seedMention(t, store, "trade", "c", base.Add(3*time.Second), "ada")
	assert.Equal(t, 2, tr.Pending())

	// Re-delivery of an already-seen message does not count again.
	seedMention(t, store, "global", "b", base.Add(2*time.Second), "ada")
	assert.Equal(t, 2, tr.Pending())

	tr.ClearPending()
	assert.Equal(t, 0, tr.Pending())

	// Clearing does not resurrect counts from already-processed snapshots.
	seedMention(t, store, "global", "b", base.Add(2*time.Second), "ada")
	assert.Equal(t, 0, tr.Pending())
}

func TestTracker_WindowDedupComparesPreviousView(t *testing.T) {
	store := docstore.NewMemory()

	// Fill the window to its cap.
	ids := []string{"a", "b", "c", "d", "e"}
	for i, id := range ids {
		seedMention(t, store, "global", id, base.Add(time.Duration(i)*time.Second), "ada")
	}

	tr := NewTracker(store, nil)
	tr.SetUsername(context.Background(), "ada")
	require.Len(t, tr.Mentions(), FetchLimit)
	require.Equal(t, 0, tr.Pending())

	// A newer mention pushes the oldest out of the window.
	seedMention(t, store, "global", "f", base.Add(10*time.Second), "ada")
	assert.Equal(t, 1, tr.Pending())

	// Each further arrival counts exactly once against the previously
	// displayed window; messages still in view never count again.
	seedMention(t, store, "global", "g", base.Add(11*time.Second), "ada")
	assert.Equal(t, 2, tr.Pending())
}

func TestTracker_ArmsExactlyOnce(t *testing.T) {
	store := docstore.NewMemory()
	tr := NewTracker(store, nil)

	tr.SetUsername(context.Background(), "")
	assert.False(t, tr.Listening(), "empty username must not arm")

	tr.SetUsername(context.Background(), "ada")
	require.True(t, tr.Listening())
	assert.Equal(t, "ada", tr.Username())

	// The username is stable for the session; re-arming is ignored.
	tr.SetUsername(context.Background(), "grace")
	assert.Equal(t, "ada", tr.Username())
	assert.Equal(t, 1, store.SubscriptionCount())
}

func TestTracker_PauseResume(t *testing.T) {
	store := docstore.NewMemory()
	seedMention(t, store, "global", "a", base.Add(1*time.Second), "ada")

	tr := NewTracker(store, nil)
	tr.SetUsername(context.Background(), "ada")

	tr.Pause()
	assert.True(t, tr.Paused())
	assert.False(t, tr.Listening())
	assert.Equal(t, 0, store.SubscriptionCount())
	assert.Len(t, tr.Mentions(), 1, "window stays visible while paused")

	tr.Pause() // idempotent

	// Mentions arriving while paused are picked up on resume and counted
	// once against the pre-pause window.
	seedMention(t, store, "trade", "b", base.Add(2*time.Second), "ada")
	tr.Resume(context.Background())
	assert.False(t, tr.Paused())
	assert.True(t, tr.Listening())
	assert.Equal(t, 1, store.SubscriptionCount())
	assert.Equal(t, 1, tr.Pending())

	tr.Resume(context.Background()) // idempotent
	assert.Equal(t, 1, store.SubscriptionCount())
}

func TestTracker_ArmedWhilePausedListensOnResume(t *testing.T) {
	store := docstore.NewMemory()
	tr := NewTracker(store, nil)

	tr.Pause()
	tr.SetUsername(context.Background(), "ada")
	assert.False(t, tr.Listening(), "paused tracker must not open a stream")

	tr.Resume(context.Background())
	assert.True(t, tr.Listening())
}
