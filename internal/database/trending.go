package database

import (
	"database/sql"
	"time"
)

// TrendingCacheKey names the single trending snapshot slot.
const TrendingCacheKey = "podcasts"

// GetTrendingCache returns the slot contents, or nil if the slot was never filled.
func (db *DB) GetTrendingCache(key string) (*TrendingCacheEntry, error) {
	e := TrendingCacheEntry{Key: key}
	var data string
	err := db.conn.QueryRow(
		`SELECT data_json, COALESCE(cached_at, '') FROM trending_cache WHERE cache_key = ?`, key,
	).Scan(&data, &e.CachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Data = []byte(data)
	return &e, nil
}

// SetTrendingCache replaces the slot contents wholesale.
func (db *DB) SetTrendingCache(key string, data []byte) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO trending_cache (cache_key, data_json, cached_at)
		 VALUES (?, ?, datetime('now'))`,
		key, string(data),
	)
	return err
}

// CachedAtTime parses the slot timestamp as UTC.
func (e *TrendingCacheEntry) CachedAtTime() (time.Time, error) {
	return time.Parse(sqliteTimeLayout, e.CachedAt)
}
