// Package docstore defines the live-query document store capability the
// console is built on: filtered, ordered, limited queries whose subscribers
// receive the entire current result set on every change, plus point reads.
//
// Consumers never patch local state incrementally; they replace their whole
// view from the latest snapshot. Implementations must deliver snapshots for
// a single subscription in emission order.
package docstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store errors.
var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidPath = errors.New("invalid document path")
	ErrClosed      = errors.New("store is closed")
)

// Path addresses a document or collection as alternating collection and
// document segments, e.g. rooms/global/chats/abc123.
type Path []string

// NewPath builds a Path from segments.
func NewPath(segments ...string) Path {
	return Path(segments)
}

// ParsePath splits a slash-separated path string.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "/"))
}

// String returns the slash-separated form.
func (p Path) String() string {
	return strings.Join(p, "/")
}

// Len returns the number of segments.
func (p Path) Len() int {
	return len(p)
}

// ID returns the final segment, or "" for an empty path.
func (p Path) ID() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the path with the final segment removed.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Child appends segments to the path.
func (p Path) Child(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	out = append(out, segments...)
	return out
}

// IsDocument reports whether the path addresses a document
// (an even number of segments).
func (p Path) IsDocument() bool {
	return len(p) > 0 && len(p)%2 == 0
}

// Collection returns the collection name a document path belongs to, or the
// final segment for a collection path.
func (p Path) Collection() string {
	if len(p) == 0 {
		return ""
	}
	if p.IsDocument() {
		return p[len(p)-2]
	}
	return p[len(p)-1]
}

// Op is a filter comparison operator.
type Op string

const (
	// OpEqual matches documents whose field equals the value.
	OpEqual Op = "=="

	// OpArrayContains matches documents whose array field contains the value.
	OpArrayContains Op = "array-contains"
)

// Filter is a single field predicate.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query describes a filtered, ordered, limited view over one collection.
type Query struct {
	// Parent scopes the query to a collection under a specific document.
	// Ignored for group queries.
	Parent Path

	// Collection is the collection name to query.
	Collection string

	// Group matches the collection name at any depth across all parents.
	Group bool

	// Filters are ANDed field predicates.
	Filters []Filter

	// OrderBy is the field to sort on.
	OrderBy string

	// Descending reverses the sort order.
	Descending bool

	// Limit caps the result set size (0 = no limit).
	Limit int
}

// Where appends an equality or containment filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// Document is one stored record plus the ancestry path it lives at.
type Document struct {
	Path Path
	Data map[string]any
}

// String returns the string value for key, or "".
func (d *Document) String(key string) string {
	if v, ok := d.Data[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the bool value for key, or false.
func (d *Document) Bool(key string) bool {
	if v, ok := d.Data[key].(bool); ok {
		return v
	}
	return false
}

// Int64 returns the integer value for key, accepting common numeric widths.
func (d *Document) Int64(key string) int64 {
	switch v := d.Data[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Time returns the time value for key, or the zero time.
func (d *Document) Time(key string) time.Time {
	if v, ok := d.Data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// StringSlice returns the string-slice value for key, accepting []any.
func (d *Document) StringSlice(key string) []string {
	switch v := d.Data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Snapshot is a complete, self-consistent result set for a live query.
type Snapshot struct {
	Docs []Document
}

// SnapshotHandler receives the full result set on every change.
type SnapshotHandler func(snap Snapshot)

// ErrorHandler receives transport failures on a live subscription.
type ErrorHandler func(err error)

// CancelFunc tears down a live subscription. Safe to call more than once.
type CancelFunc func()

// Store is the document-store capability consumed by the console.
type Store interface {
	// Subscribe opens a live query. The handler is invoked with the full
	// current result set immediately and again on every subsequent change
	// until the returned CancelFunc is called.
	Subscribe(ctx context.Context, q Query, onSnapshot SnapshotHandler, onError ErrorHandler) (CancelFunc, error)

	// Get fetches a single document by path. Returns ErrNotFound if absent.
	Get(ctx context.Context, path Path) (*Document, error)

	// ListCollection fetches every document directly under a collection path.
	ListCollection(ctx context.Context, path Path) ([]Document, error)
}
