package settings

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS open_channels (
	name     TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);
`

// SQLiteStore persists settings in a local SQLite file, the desktop analog
// of per-browser settings storage.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the settings database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize settings schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Channels implements Store.
func (s *SQLiteStore) Channels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM open_channels ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open channels: %w", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read open channels: %w", err)
	}
	return channels, nil
}

// AddChannel implements Store.
func (s *SQLiteStore) AddChannel(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO open_channels (name, position)
		SELECT ?, COALESCE(MAX(position), 0) + 1 FROM open_channels
		WHERE NOT EXISTS (SELECT 1 FROM open_channels WHERE name = ?)
	`, name, name)
	if err != nil {
		return fmt.Errorf("failed to add channel: %w", err)
	}
	return nil
}

// RemoveChannel implements Store.
func (s *SQLiteStore) RemoveChannel(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM open_channels WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to remove channel: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
