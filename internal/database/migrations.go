package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "profile, history, favorites, recommendation cache, my list",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS taste_profile (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    profile_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS consumption_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_type TEXT NOT NULL,
    item_id TEXT NOT NULL,
    title TEXT NOT NULL,
    rating INTEGER CHECK (rating BETWEEN 1 AND 5),
    notes TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS favorite_feeds (
    feed_id INTEGER PRIMARY KEY,
    feed_title TEXT NOT NULL,
    added_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS recommendations_cache (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    profile_hash TEXT NOT NULL,
    user_request TEXT DEFAULT '',
    response_json TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(profile_hash, user_request)
);

CREATE TABLE IF NOT EXISTS my_list (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    episode_id INTEGER NOT NULL UNIQUE,
    episode_title TEXT NOT NULL,
    feed_id INTEGER,
    feed_title TEXT,
    image TEXT,
    url TEXT,
    added_at TEXT DEFAULT (datetime('now'))
);

INSERT OR IGNORE INTO taste_profile (id, profile_json) VALUES (1, '{}');
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "trending cache slot and community mention counts",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS trending_cache (
    cache_key TEXT PRIMARY KEY,
    data_json TEXT NOT NULL,
    cached_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS mention_counts (
    name TEXT PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 0,
    subreddits TEXT,
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_consumption_created ON consumption_log(created_at);
CREATE INDEX IF NOT EXISTS idx_mentions_updated ON mention_counts(updated_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
