package docstore

import (
	"testing"
	"time"
)

func TestPath(t *testing.T) {
	p := ParsePath("rooms/global/chats/abc")

	if p.Len() != 4 {
		t.Fatalf("expected 4 segments, got %d", p.Len())
	}
	if !p.IsDocument() {
		t.Error("expected document path")
	}
	if p.ID() != "abc" {
		t.Errorf("unexpected ID: %s", p.ID())
	}
	if p.Collection() != "chats" {
		t.Errorf("unexpected collection: %s", p.Collection())
	}
	if p.Parent().String() != "rooms/global/chats" {
		t.Errorf("unexpected parent: %s", p.Parent())
	}
	if p.Parent().IsDocument() {
		t.Error("expected collection path")
	}
	if got := NewPath("rooms", "global").Child("chats", "abc").String(); got != "rooms/global/chats/abc" {
		t.Errorf("unexpected child path: %s", got)
	}
}

func TestDocumentAccessors(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := Document{
		Path: ParsePath("rooms/global/chats/abc"),
		Data: map[string]any{
			"id":       "abc",
			"deleted":  true,
			"flags":    int64(3),
			"ts":       ts,
			"mentions": []any{"ada", "grace"},
		},
	}

	if doc.String("id") != "abc" {
		t.Errorf("unexpected id: %s", doc.String("id"))
	}
	if !doc.Bool("deleted") {
		t.Error("expected deleted")
	}
	if doc.Int64("flags") != 3 {
		t.Errorf("unexpected flags: %d", doc.Int64("flags"))
	}
	if !doc.Time("ts").Equal(ts) {
		t.Errorf("unexpected ts: %v", doc.Time("ts"))
	}
	if got := doc.StringSlice("mentions"); len(got) != 2 || got[0] != "ada" || got[1] != "grace" {
		t.Errorf("unexpected mentions: %v", got)
	}

	// Missing keys fall back to zero values.
	if doc.String("missing") != "" || doc.Bool("missing") || doc.Int64("missing") != 0 {
		t.Error("expected zero values for missing keys")
	}
	if !doc.Time("missing").IsZero() || doc.StringSlice("missing") != nil {
		t.Error("expected zero values for missing keys")
	}
}
