// Package mongodb implements the docstore contract on MongoDB.
//
// Every logical document is persisted with its full ancestry path alongside
// its fields, one MongoDB collection per docstore collection name. Live
// queries are served by re-running the full query whenever the collection's
// change stream reports any write, which keeps the "entire result set on
// every change" contract without any local merge logic. Change streams
// require a replica set deployment.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/wrenna/modwatch/internal/docstore"
	"github.com/wrenna/modwatch/internal/logging"
)

const defaultConnectTimeout = 10 * time.Second

// Config holds MongoDB connection settings.
type Config struct {
	// URI is the MongoDB connection string.
	URI string

	// Database is the database holding console collections.
	Database string

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "modwatch",
		ConnectTimeout: defaultConnectTimeout,
	}
}

// Store is a MongoDB-backed docstore.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// record is the persisted shape of one logical document.
type record struct {
	ID   string   `bson:"_id"`
	Path []string `bson:"path"`
	Data bson.M   `bson:"data"`
}

// Connect establishes a client and verifies connectivity.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logging.Component("docstore-mongodb"),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Put creates or replaces the document at path.
func (s *Store) Put(ctx context.Context, path docstore.Path, data map[string]any) error {
	if !path.IsDocument() {
		return docstore.ErrInvalidPath
	}

	rec := record{
		ID:   path.String(),
		Path: []string(path),
		Data: bson.M(data),
	}

	_, err := s.db.Collection(path.Collection()).ReplaceOne(
		ctx,
		bson.M{"_id": rec.ID},
		rec,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to put document %s: %w", path, err)
	}
	return nil
}

// Subscribe implements docstore.Store.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, onSnapshot docstore.SnapshotHandler, onError docstore.ErrorHandler) (docstore.CancelFunc, error) {
	subCtx, cancel := context.WithCancel(ctx)

	// Initial full result set before the change stream is consumed, so
	// subscribers always start from a complete view.
	snap, err := s.evaluate(subCtx, q)
	if err != nil {
		cancel()
		return nil, err
	}
	onSnapshot(snap)

	stream, err := s.db.Collection(q.Collection).Watch(subCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream on %s: %w", q.Collection, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stream.Close(context.Background())

		for stream.Next(subCtx) {
			snap, err := s.evaluate(subCtx, q)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				s.logger.Error().Err(err).Str("collection", q.Collection).Msg("requery after change failed")
				if onError != nil {
					onError(err)
				}
				continue
			}
			onSnapshot(snap)
		}

		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) && subCtx.Err() == nil {
			s.logger.Error().Err(err).Str("collection", q.Collection).Msg("change stream failed")
			if onError != nil {
				onError(err)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, path docstore.Path) (*docstore.Document, error) {
	if !path.IsDocument() {
		return nil, docstore.ErrInvalidPath
	}

	var rec record
	err := s.db.Collection(path.Collection()).FindOne(ctx, bson.M{"_id": path.String()}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}

	doc := rec.document()
	return &doc, nil
}

// ListCollection implements docstore.Store.
func (s *Store) ListCollection(ctx context.Context, path docstore.Path) ([]docstore.Document, error) {
	if path.IsDocument() {
		return nil, docstore.ErrInvalidPath
	}

	filter := scopeFilter(path, path.Collection())
	cursor, err := s.db.Collection(path.Collection()).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", path, err)
	}
	defer cursor.Close(ctx)

	return decodeAll(ctx, cursor)
}

// evaluate runs the full query and converts the results.
func (s *Store) evaluate(ctx context.Context, q docstore.Query) (docstore.Snapshot, error) {
	filter := bson.M{}
	if !q.Group {
		filter = scopeFilter(q.Parent, q.Collection)
	}

	for _, f := range q.Filters {
		switch f.Op {
		case docstore.OpEqual, docstore.OpArrayContains:
			// Mongo equality on an array field already means "contains".
			filter["data."+f.Field] = f.Value
		default:
			return docstore.Snapshot{}, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: "data." + q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer cursor.Close(ctx)

	docs, err := decodeAll(ctx, cursor)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	return docstore.Snapshot{Docs: docs}, nil
}

// scopeFilter restricts results to paths directly under parent.
func scopeFilter(parent docstore.Path, collection string) bson.M {
	filter := bson.M{
		"path": bson.M{"$size": len(parent) + 2},
	}
	for i, seg := range parent {
		filter[fmt.Sprintf("path.%d", i)] = seg
	}
	filter[fmt.Sprintf("path.%d", len(parent))] = collection
	return filter
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]docstore.Document, error) {
	var out []docstore.Document
	for cursor.Next(ctx) {
		var rec record
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, rec.document())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor failed: %w", err)
	}
	return out, nil
}

// document converts a persisted record into the docstore shape, normalizing
// bson types into plain Go values.
func (r record) document() docstore.Document {
	return docstore.Document{
		Path: docstore.Path(r.Path),
		Data: normalizeMap(r.Data),
	}
}

func normalizeMap(m bson.M) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case bson.M:
		return normalizeMap(val)
	case bson.D:
		out := make(bson.M, len(val))
		for _, e := range val {
			out[e.Key] = e.Value
		}
		return normalizeMap(out)
	default:
		return v
	}
}
