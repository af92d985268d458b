package database

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// IncrementMention adds n to a podcast name's mention count and refreshes its
// timestamp. Names should already be normalized (lowercased).
func (db *DB) IncrementMention(name string, subreddits []string, n int) error {
	subs, err := json.Marshal(subreddits)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO mention_counts (name, count, subreddits, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(name) DO UPDATE SET
		     count = count + excluded.count,
		     subreddits = excluded.subreddits,
		     updated_at = datetime('now')`,
		name, n, string(subs),
	)
	return err
}

// GetMentionCounts returns name -> count for entries updated within window.
func (db *DB) GetMentionCounts(window time.Duration) (map[string]int, error) {
	rows, err := db.conn.Query(
		`SELECT name, count FROM mention_counts WHERE updated_at > datetime('now', ?)`,
		windowModifier(window),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

// TopMentions returns the n most mentioned names within window, ties broken
// alphabetically.
func (db *DB) TopMentions(window time.Duration, n int) ([]MentionCount, error) {
	rows, err := db.conn.Query(
		`SELECT name, count, COALESCE(subreddits, '[]'), COALESCE(updated_at, '')
		 FROM mention_counts
		 WHERE updated_at > datetime('now', ?)
		 ORDER BY count DESC, name ASC
		 LIMIT ?`,
		windowModifier(window), n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MentionCount
	for rows.Next() {
		var m MentionCount
		var subs string
		if err := rows.Scan(&m.Name, &m.Count, &subs, &m.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(subs), &m.Subreddits); err != nil {
			return nil, fmt.Errorf("decoding subreddits for %q: %w", m.Name, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func windowModifier(window time.Duration) string {
	return fmt.Sprintf("-%d seconds", int64(window/time.Second))
}
