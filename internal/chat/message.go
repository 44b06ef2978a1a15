// Package chat maintains live, ordered, deduplicated views of chat rooms.
package chat

import (
	"sort"
	"time"

	"github.com/wrenna/modwatch/internal/docstore"
)

// Message is one chat message as mirrored from the document store. Messages
// are value-like: every snapshot rebuilds the whole collection rather than
// patching entries in place.
type Message struct {
	// ID is unique within a room; (Room, ID) is the dedup identity.
	ID string

	// Room is the channel the message was posted in.
	Room string

	// Username is the author.
	Username string

	// Emblem references the author's emblem image.
	Emblem string

	// Timestamp is when the message was posted.
	Timestamp time.Time

	// Content is the rendered message body (HTML).
	Content string

	// Deleted marks messages removed by moderation.
	Deleted bool

	// Mentions lists usernames @-mentioned in the message.
	Mentions []string
}

// Key is the cross-room dedup identity of a message.
type Key struct {
	Room string
	ID   string
}

// Key returns the message's dedup identity.
func (m *Message) Key() Key {
	return Key{Room: m.Room, ID: m.ID}
}

// Mentioned reports whether the message @-mentions the given username.
func (m *Message) Mentioned(username string) bool {
	for _, u := range m.Mentions {
		if u == username {
			return true
		}
	}
	return false
}

// MessageFromDocument builds a Message from a snapshot document. The room is
// taken from the document's own field when present, falling back to the
// ancestry path (rooms/<room>/chats/<id>).
func MessageFromDocument(doc docstore.Document) *Message {
	msg := &Message{
		ID:        doc.String("id"),
		Room:      doc.String("room"),
		Username:  doc.String("username"),
		Emblem:    doc.String("emblem"),
		Timestamp: doc.Time("ts"),
		Content:   doc.String("content"),
		Deleted:   doc.Bool("deleted"),
		Mentions:  doc.StringSlice("mentions"),
	}
	if msg.ID == "" {
		msg.ID = doc.Path.ID()
	}
	if msg.Room == "" && doc.Path.Len() >= 4 && doc.Path[0] == "rooms" {
		msg.Room = doc.Path[1]
	}
	return msg
}

// sortMessagesDesc orders messages newest first. The store's own snapshot
// order is not trusted after merges, so callers always re-sort explicitly.
func sortMessagesDesc(messages []*Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.After(messages[j].Timestamp)
	})
}
