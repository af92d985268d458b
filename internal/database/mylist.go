package database

// AddToMyList queues an episode. Adding an episode twice keeps the first entry.
func (db *DB) AddToMyList(entry QueueEntry) error {
	_, err := db.conn.Exec(
		`INSERT OR IGNORE INTO my_list (episode_id, episode_title, feed_id, feed_title, image, url)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.EpisodeID, entry.EpisodeTitle, entry.FeedID, entry.FeedTitle, entry.Image, entry.URL,
	)
	return err
}

// RemoveFromMyList drops an episode from the queue.
func (db *DB) RemoveFromMyList(episodeID int64) error {
	_, err := db.conn.Exec(`DELETE FROM my_list WHERE episode_id = ?`, episodeID)
	return err
}

// GetMyList returns queued episodes, most recently added first.
func (db *DB) GetMyList() ([]QueueEntry, error) {
	rows, err := db.conn.Query(
		`SELECT id, episode_id, episode_title, feed_id, feed_title, image, url, COALESCE(added_at, '')
		 FROM my_list ORDER BY added_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.ID, &e.EpisodeID, &e.EpisodeTitle, &e.FeedID, &e.FeedTitle, &e.Image, &e.URL, &e.AddedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
