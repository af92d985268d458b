package database

import (
	"database/sql"
	"fmt"
)

// LogConsumption records a rated listen and returns its id.
func (db *DB) LogConsumption(entry ConsumptionEntry) (int64, error) {
	if entry.Rating < 1 || entry.Rating > 5 {
		return 0, fmt.Errorf("rating must be between 1 and 5, got %d", entry.Rating)
	}
	itemType := entry.ItemType
	if itemType == "" {
		itemType = DefaultItemType
	}

	var result sql.Result
	var err error
	if entry.Timestamp != "" {
		result, err = db.conn.Exec(
			`INSERT INTO consumption_log (item_type, item_id, title, rating, notes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			itemType, entry.ItemID, entry.Title, entry.Rating, entry.Notes, entry.Timestamp,
		)
	} else {
		result, err = db.conn.Exec(
			`INSERT INTO consumption_log (item_type, item_id, title, rating, notes)
			 VALUES (?, ?, ?, ?, ?)`,
			itemType, entry.ItemID, entry.Title, entry.Rating, entry.Notes,
		)
	}
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetConsumptionHistory returns up to limit entries, newest first.
func (db *DB) GetConsumptionHistory(limit int) ([]ConsumptionEntry, error) {
	rows, err := db.conn.Query(
		`SELECT id, item_type, item_id, title, rating, notes, COALESCE(created_at, '')
		 FROM consumption_log
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ConsumptionEntry
	for rows.Next() {
		var e ConsumptionEntry
		if err := rows.Scan(&e.ID, &e.ItemType, &e.ItemID, &e.Title, &e.Rating, &e.Notes, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
