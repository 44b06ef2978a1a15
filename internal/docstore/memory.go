package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store implementation. It backs the test suite and
// the "memory" backend for local development. Mutations synchronously fan
// out full snapshots to every subscription whose scope covers the mutated
// document.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]Document
	subs   map[string]*memorySubscription
	closed bool
}

type memorySubscription struct {
	id         string
	query      Query
	onSnapshot SnapshotHandler
	onError    ErrorHandler
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]Document),
		subs: make(map[string]*memorySubscription),
	}
}

// Put creates or replaces the document at path and notifies subscribers.
func (m *Memory) Put(path Path, data map[string]any) error {
	if !path.IsDocument() {
		return ErrInvalidPath
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	copied := make(map[string]any, len(data))
	for k, v := range data {
		copied[k] = v
	}
	m.docs[path.String()] = Document{Path: path, Data: copied}
	targets := m.scopedSubscriptionsLocked(path)
	m.mu.Unlock()

	m.deliver(targets)
	return nil
}

// Delete removes the document at path, if present, and notifies subscribers.
func (m *Memory) Delete(path Path) {
	m.mu.Lock()
	if _, ok := m.docs[path.String()]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.docs, path.String())
	targets := m.scopedSubscriptionsLocked(path)
	m.mu.Unlock()

	m.deliver(targets)
}

// EmitError invokes the error handler of every active subscription. Used to
// simulate transport failure.
func (m *Memory) EmitError(err error) {
	m.mu.RLock()
	handlers := make([]ErrorHandler, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.onError != nil {
			handlers = append(handlers, sub.onError)
		}
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(err)
	}
}

// SubscriptionCount returns the number of live subscriptions.
func (m *Memory) SubscriptionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close drops all documents and subscriptions.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.docs = make(map[string]Document)
	m.subs = make(map[string]*memorySubscription)
}

// Subscribe implements Store.
func (m *Memory) Subscribe(ctx context.Context, q Query, onSnapshot SnapshotHandler, onError ErrorHandler) (CancelFunc, error) {
	if onSnapshot == nil {
		return nil, ErrInvalidPath
	}

	sub := &memorySubscription{
		id:         uuid.New().String(),
		query:      q,
		onSnapshot: onSnapshot,
		onError:    onError,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.subs[sub.id] = sub
	snap := m.evaluateLocked(q)
	m.mu.Unlock()

	// Initial full snapshot, mirroring live-query semantics.
	onSnapshot(snap)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, sub.id)
			m.mu.Unlock()
		})
	}
	return cancel, nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, path Path) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[path.String()]
	if !ok {
		return nil, ErrNotFound
	}
	out := doc
	return &out, nil
}

// ListCollection implements Store.
func (m *Memory) ListCollection(ctx context.Context, path Path) ([]Document, error) {
	if path.IsDocument() {
		return nil, ErrInvalidPath
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Document
	for _, doc := range m.docs {
		if len(doc.Path) != len(path)+1 {
			continue
		}
		if !hasPrefix(doc.Path, path) {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path.ID() < out[j].Path.ID()
	})
	return out, nil
}

// scopedSubscriptionsLocked returns subscriptions whose query scope covers
// the given document path. Filter predicates are deliberately not consulted:
// a field change can move a document in or out of a filtered result set, so
// every scope-matching subscription gets a fresh snapshot.
func (m *Memory) scopedSubscriptionsLocked(path Path) []snapshotTarget {
	var targets []snapshotTarget
	for _, sub := range m.subs {
		if !queryCoversPath(sub.query, path) {
			continue
		}
		targets = append(targets, snapshotTarget{
			handler: sub.onSnapshot,
			snap:    m.evaluateLocked(sub.query),
		})
	}
	return targets
}

type snapshotTarget struct {
	handler SnapshotHandler
	snap    Snapshot
}

func (m *Memory) deliver(targets []snapshotTarget) {
	for _, t := range targets {
		t.handler(t.snap)
	}
}

// evaluateLocked computes the full result set for a query.
func (m *Memory) evaluateLocked(q Query) Snapshot {
	var docs []Document
	for _, doc := range m.docs {
		if !queryCoversPath(q, doc.Path) {
			continue
		}
		if !matchesFilters(q.Filters, doc) {
			continue
		}
		docs = append(docs, doc)
	}

	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	return Snapshot{Docs: docs}
}

// queryCoversPath reports whether a document path is inside a query's scope.
func queryCoversPath(q Query, path Path) bool {
	if !path.IsDocument() {
		return false
	}
	if q.Group {
		return path.Collection() == q.Collection
	}
	if len(q.Parent) > 0 {
		if len(path) != len(q.Parent)+2 {
			return false
		}
		if !hasPrefix(path, q.Parent) {
			return false
		}
		return path[len(q.Parent)] == q.Collection
	}
	return len(path) == 2 && path[0] == q.Collection
}

func hasPrefix(path, prefix Path) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

func matchesFilters(filters []Filter, doc Document) bool {
	for _, f := range filters {
		switch f.Op {
		case OpEqual:
			if compareValues(doc.Data[f.Field], f.Value) != 0 {
				return false
			}
		case OpArrayContains:
			if !arrayContains(doc.Data[f.Field], f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func arrayContains(field, value any) bool {
	switch arr := field.(type) {
	case []string:
		for _, item := range arr {
			if s, ok := value.(string); ok && item == s {
				return true
			}
		}
	case []any:
		for _, item := range arr {
			if compareValues(item, value) == 0 {
				return true
			}
		}
	}
	return false
}

// compareValues orders two field values of the same kind. Mixed or unknown
// kinds compare as equal.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case int, int32, int64, float64:
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if aok && bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0
			}
			if !av {
				return -1
			}
			return 1
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
