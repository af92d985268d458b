package database

import (
	"database/sql"
	"time"
)

// GetCachedRecommendations returns the stored payload for a fingerprint and
// request if it is younger than maxAge, or nil when missing or expired.
// Expired rows are left in place and overwritten by the next store.
func (db *DB) GetCachedRecommendations(profileHash, userRequest string, maxAge time.Duration) ([]byte, error) {
	var payload string
	err := db.conn.QueryRow(
		`SELECT response_json FROM recommendations_cache
		 WHERE profile_hash = ? AND user_request = ?
		   AND datetime(created_at, '+' || ? || ' seconds') > datetime('now')`,
		profileHash, userRequest, int64(maxAge/time.Second),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// SetCachedRecommendations upserts a payload and resets its timestamp.
func (db *DB) SetCachedRecommendations(profileHash, userRequest string, payload []byte) error {
	_, err := db.conn.Exec(
		`INSERT INTO recommendations_cache (profile_hash, user_request, response_json)
		 VALUES (?, ?, ?)
		 ON CONFLICT(profile_hash, user_request)
		 DO UPDATE SET response_json = excluded.response_json,
		               created_at = datetime('now')`,
		profileHash, userRequest, string(payload),
	)
	return err
}

// LatestCachedRecommendations returns the most recently stored result
// regardless of age, or nil if nothing was ever cached.
func (db *DB) LatestCachedRecommendations() (*CachedRecommendation, error) {
	var c CachedRecommendation
	var payload string
	err := db.conn.QueryRow(
		`SELECT profile_hash, COALESCE(user_request, ''), response_json, COALESCE(created_at, '')
		 FROM recommendations_cache ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&c.ProfileHash, &c.UserRequest, &payload, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Payload = []byte(payload)
	return &c, nil
}
