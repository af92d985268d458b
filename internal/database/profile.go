package database

import (
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
)

// GetTasteProfile returns the stored profile, filling unset fields with defaults.
func (db *DB) GetTasteProfile() (TasteProfile, error) {
	profile := DefaultTasteProfile()

	var raw string
	err := db.conn.QueryRow("SELECT profile_json FROM taste_profile WHERE id = 1").Scan(&raw)
	if err == sql.ErrNoRows {
		return profile, nil
	}
	if err != nil {
		return profile, err
	}

	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return DefaultTasteProfile(), fmt.Errorf("decoding taste profile: %w", err)
	}
	if profile.PreferredDepth == "" {
		profile.PreferredDepth = DepthModerate
	}
	if profile.FormatPreferences == nil {
		profile.FormatPreferences = []string{}
	}
	if profile.TopicInterests == nil {
		profile.TopicInterests = map[string]float64{}
	}
	return profile, nil
}

// SaveTasteProfile replaces the stored profile.
func (db *DB) SaveTasteProfile(profile TasteProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO taste_profile (id, profile_json) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET profile_json = excluded.profile_json`,
		string(data),
	)
	return err
}

// UpdateTasteProfile merges a partial update into the stored profile and
// returns the result.
func (db *DB) UpdateTasteProfile(update ProfileUpdate) (TasteProfile, error) {
	current, err := db.GetTasteProfile()
	if err != nil {
		return current, err
	}
	merged := current.Merge(update)
	if err := db.SaveTasteProfile(merged); err != nil {
		return current, err
	}
	return merged, nil
}
