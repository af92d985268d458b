package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout matches the text written by SQLite's datetime('now').
const sqliteTimeLayout = "2006-01-02 15:04:05"

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Stats summarizes what the store currently holds.
type Stats struct {
	HistoryEntries  int     `json:"history_entries"`
	Favorites       int     `json:"favorites"`
	QueuedEpisodes  int     `json:"queued_episodes"`
	CachedResults   int     `json:"cached_results"`
	TrackedMentions int     `json:"tracked_mentions"`
	TrendingCached  *string `json:"trending_cached_at"`
}

// GetStats returns row counts for the status command and API.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM consumption_log", &s.HistoryEntries},
		{"SELECT COUNT(*) FROM favorite_feeds", &s.Favorites},
		{"SELECT COUNT(*) FROM my_list", &s.QueuedEpisodes},
		{"SELECT COUNT(*) FROM recommendations_cache", &s.CachedResults},
		{"SELECT COUNT(*) FROM mention_counts", &s.TrackedMentions},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	err := db.conn.QueryRow(
		"SELECT cached_at FROM trending_cache WHERE cache_key = ?", TrendingCacheKey,
	).Scan(&s.TrendingCached)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return &s, nil
}
