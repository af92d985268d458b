package database

// AddFavoriteFeed marks a podcast as a favorite, replacing its title if present.
func (db *DB) AddFavoriteFeed(feedID int64, feedTitle string) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO favorite_feeds (feed_id, feed_title) VALUES (?, ?)`,
		feedID, feedTitle,
	)
	return err
}

// RemoveFavoriteFeed unmarks a podcast. Removing an unknown feed is a no-op.
func (db *DB) RemoveFavoriteFeed(feedID int64) error {
	_, err := db.conn.Exec(`DELETE FROM favorite_feeds WHERE feed_id = ?`, feedID)
	return err
}

// GetFavoriteFeeds returns all favorites, most recently added first.
func (db *DB) GetFavoriteFeeds() ([]FavoriteFeed, error) {
	rows, err := db.conn.Query(
		`SELECT feed_id, feed_title, COALESCE(added_at, '') FROM favorite_feeds
		 ORDER BY added_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favs []FavoriteFeed
	for rows.Next() {
		var f FavoriteFeed
		if err := rows.Scan(&f.FeedID, &f.FeedTitle, &f.AddedAt); err != nil {
			return nil, err
		}
		favs = append(favs, f)
	}
	return favs, rows.Err()
}

// IsFavoriteFeed reports whether a feed is a favorite.
func (db *DB) IsFavoriteFeed(feedID int64) (bool, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM favorite_feeds WHERE feed_id = ?`, feedID).Scan(&count)
	return count > 0, err
}
