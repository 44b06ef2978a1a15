package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedMessage(t *testing.T, m *Memory, room, id string, ts time.Time, mentions []string) {
	t.Helper()
	err := m.Put(NewPath("rooms", room, "chats", id), map[string]any{
		"id":       id,
		"room":     room,
		"ts":       ts,
		"content":  "hello",
		"mentions": mentions,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func TestMemory_SubscribeDeliversFullSnapshots(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, m, "global", "a", base.Add(3*time.Second), nil)
	seedMessage(t, m, "global", "b", base.Add(2*time.Second), nil)
	seedMessage(t, m, "trade", "x", base.Add(9*time.Second), nil)

	var snaps []Snapshot
	cancel, err := m.Subscribe(ctx, Query{
		Parent:     NewPath("rooms", "global"),
		Collection: "chats",
		OrderBy:    "ts",
		Descending: true,
		Limit:      10,
	}, func(snap Snapshot) {
		snaps = append(snaps, snap)
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if len(snaps) != 1 {
		t.Fatalf("expected initial snapshot, got %d", len(snaps))
	}
	if len(snaps[0].Docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(snaps[0].Docs))
	}
	if snaps[0].Docs[0].String("id") != "a" || snaps[0].Docs[1].String("id") != "b" {
		t.Errorf("unexpected order: %s, %s", snaps[0].Docs[0].String("id"), snaps[0].Docs[1].String("id"))
	}

	// A write in scope redelivers the whole result set.
	seedMessage(t, m, "global", "c", base.Add(5*time.Second), nil)
	if len(snaps) != 2 {
		t.Fatalf("expected second snapshot, got %d", len(snaps))
	}
	if len(snaps[1].Docs) != 3 || snaps[1].Docs[0].String("id") != "c" {
		t.Errorf("unexpected snapshot after write: %+v", snaps[1].Docs)
	}

	// A write out of scope does not notify this subscription.
	seedMessage(t, m, "trade", "y", base.Add(6*time.Second), nil)
	if len(snaps) != 2 {
		t.Fatalf("out-of-scope write delivered a snapshot")
	}

	// After cancel, no more deliveries.
	cancel()
	seedMessage(t, m, "global", "d", base.Add(7*time.Second), nil)
	if len(snaps) != 2 {
		t.Fatalf("cancelled subscription delivered a snapshot")
	}
}

func TestMemory_GroupQueryWithArrayContains(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, m, "global", "a", base.Add(1*time.Second), []string{"ada"})
	seedMessage(t, m, "trade", "b", base.Add(2*time.Second), []string{"grace"})
	seedMessage(t, m, "help", "c", base.Add(3*time.Second), []string{"ada", "grace"})

	var last Snapshot
	cancel, err := m.Subscribe(ctx, Query{
		Collection: "chats",
		Group:      true,
		OrderBy:    "ts",
		Descending: true,
		Limit:      5,
	}.Where("mentions", OpArrayContains, "ada"), func(snap Snapshot) {
		last = snap
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if len(last.Docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(last.Docs))
	}
	if last.Docs[0].String("id") != "c" || last.Docs[1].String("id") != "a" {
		t.Errorf("unexpected order: %s, %s", last.Docs[0].String("id"), last.Docs[1].String("id"))
	}
}

func TestMemory_Limit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		seedMessage(t, m, "global", id, base.Add(time.Duration(i)*time.Second), nil)
	}

	var last Snapshot
	cancel, err := m.Subscribe(ctx, Query{
		Parent:     NewPath("rooms", "global"),
		Collection: "chats",
		OrderBy:    "ts",
		Descending: true,
		Limit:      2,
	}, func(snap Snapshot) {
		last = snap
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if len(last.Docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(last.Docs))
	}
	if last.Docs[0].String("id") != "d" || last.Docs[1].String("id") != "c" {
		t.Errorf("limit kept the wrong docs: %s, %s", last.Docs[0].String("id"), last.Docs[1].String("id"))
	}
}

func TestMemory_GetAndListCollection(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Put(NewPath("rooms", "trade"), map[string]any{"name": "trade"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Put(NewPath("rooms", "global"), map[string]any{"name": "global"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	doc, err := m.Get(ctx, NewPath("rooms", "global"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.String("name") != "global" {
		t.Errorf("unexpected doc: %+v", doc.Data)
	}

	if _, err := m.Get(ctx, NewPath("rooms", "missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	docs, err := m.ListCollection(ctx, NewPath("rooms"))
	if err != nil {
		t.Fatalf("ListCollection failed: %v", err)
	}
	if len(docs) != 2 || docs[0].Path.ID() != "global" || docs[1].Path.ID() != "trade" {
		t.Errorf("unexpected listing: %+v", docs)
	}
}

func TestMemory_EmitError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var got error
	cancel, err := m.Subscribe(ctx, Query{Collection: "chats", Group: true}, func(Snapshot) {}, func(err error) {
		got = err
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	want := errors.New("transport down")
	m.EmitError(want)
	if got != want {
		t.Errorf("expected error handler invocation, got %v", got)
	}
}

func TestMemory_PutRejectsCollectionPath(t *testing.T) {
	m := NewMemory()
	if err := m.Put(NewPath("rooms"), map[string]any{}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}
