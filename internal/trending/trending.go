// Package trending keeps a time-boxed snapshot of the directory's trending
// podcasts and episodes.
package trending

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/poddiscover/internal/database"
	"github.com/TobiSchelling/poddiscover/internal/metrics"
	"github.com/TobiSchelling/poddiscover/internal/podindex"
)

const (
	// DefaultTTL is how long a snapshot stays fresh.
	DefaultTTL = 4 * time.Hour

	fetchLimit = 100
)

// Store persists the single snapshot slot.
type Store interface {
	GetTrendingCache(key string) (*database.TrendingCacheEntry, error)
	SetTrendingCache(key string, data []byte) error
}

// Directory supplies the raw trending lists.
type Directory interface {
	TrendingPodcasts(ctx context.Context, max int) (map[int64]podindex.TrendingPodcast, error)
	TrendingEpisodes(ctx context.Context, max int) ([]podindex.Episode, error)
}

// EpisodeRank is an episode's 0-based position in the trending list.
type EpisodeRank struct {
	Rank int `json:"rank"`
}

// Snapshot is a point-in-time trending ranking. It is replaced wholesale on
// refresh and never merged.
type Snapshot struct {
	Podcasts map[int64]podindex.TrendingPodcast `json:"podcasts"`
	Episodes map[int64]EpisodeRank              `json:"episodes"`
	CachedAt time.Time                          `json:"-"`
}

// Empty returns a snapshot that carries no trending signal.
func Empty() *Snapshot {
	return &Snapshot{
		Podcasts: map[int64]podindex.TrendingPodcast{},
		Episodes: map[int64]EpisodeRank{},
	}
}

// IsEmpty reports whether the snapshot has no podcasts and no episodes.
func (s *Snapshot) IsEmpty() bool {
	return len(s.Podcasts) == 0 && len(s.Episodes) == 0
}

// TopFeeds returns up to n feed ids ordered by rank. Unranked feeds sort last.
func (s *Snapshot) TopFeeds(n int) []int64 {
	ids := make([]int64, 0, len(s.Podcasts))
	for id := range s.Podcasts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := s.Podcasts[ids[i]].Rank, s.Podcasts[ids[j]].Rank
		switch {
		case ri == nil && rj == nil:
			return ids[i] < ids[j]
		case ri == nil:
			return false
		case rj == nil:
			return true
		case *ri != *rj:
			return *ri < *rj
		default:
			return ids[i] < ids[j]
		}
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// Manager serves the current snapshot, refreshing it from the directory only
// when stale. Concurrent refreshes are tolerated: last write wins.
type Manager struct {
	store Store
	dir   Directory
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a Manager. A non-positive ttl means DefaultTTL.
func NewManager(store Store, dir Directory, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, dir: dir, ttl: ttl, now: time.Now}
}

// TTL returns the freshness window used by GetOrRefresh.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// IsStale reports whether no snapshot exists or the stored one is older than maxAge.
func (m *Manager) IsStale(maxAge time.Duration) bool {
	snap, err := m.load()
	if err != nil {
		log.Warn().Err(err).Msg("Reading trending cache failed, treating as stale")
		return true
	}
	return m.stale(snap, maxAge)
}

func (m *Manager) stale(snap *Snapshot, maxAge time.Duration) bool {
	return snap == nil || m.now().Sub(snap.CachedAt) > maxAge
}

// GetOrRefresh returns the stored snapshot while fresh, otherwise refreshes it.
// Any failure yields an empty snapshot, which callers treat as "no trending
// signal".
func (m *Manager) GetOrRefresh(ctx context.Context) *Snapshot {
	snap, err := m.load()
	if err != nil {
		log.Warn().Err(err).Msg("Reading trending cache failed")
		snap = nil
	}
	if !m.stale(snap, m.ttl) {
		metrics.TrendingRefreshes.WithLabelValues("fresh").Inc()
		return snap
	}

	fresh, err := m.Refresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Trending refresh failed, continuing without trending signal")
		return Empty()
	}
	return fresh
}

// Refresh fetches new trending lists and replaces the stored snapshot. A
// failure to fetch episodes is logged and leaves the episode map empty.
func (m *Manager) Refresh(ctx context.Context) (*Snapshot, error) {
	podcasts, err := m.dir.TrendingPodcasts(ctx, fetchLimit)
	if err != nil {
		metrics.TrendingRefreshes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetching trending podcasts: %w", err)
	}

	snap := Empty()
	for id, p := range podcasts {
		snap.Podcasts[id] = p
	}

	episodes, err := m.dir.TrendingEpisodes(ctx, fetchLimit)
	if err != nil {
		log.Warn().Err(err).Msg("Could not fetch trending episodes")
	}
	for rank, ep := range episodes {
		if _, seen := snap.Episodes[ep.ID]; !seen {
			snap.Episodes[ep.ID] = EpisodeRank{Rank: rank}
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding trending snapshot: %w", err)
	}
	if err := m.store.SetTrendingCache(database.TrendingCacheKey, data); err != nil {
		log.Warn().Err(err).Msg("Storing trending snapshot failed")
	}
	snap.CachedAt = m.now().UTC()

	metrics.TrendingRefreshes.WithLabelValues("refreshed").Inc()
	log.Info().Int("podcasts", len(snap.Podcasts)).Int("episodes", len(snap.Episodes)).Msg("Trending cache refreshed")
	return snap, nil
}

// Current returns the stored snapshot without refreshing, or an empty one.
func (m *Manager) Current() *Snapshot {
	snap, err := m.load()
	if err != nil || snap == nil {
		return Empty()
	}
	return snap
}

func (m *Manager) load() (*Snapshot, error) {
	entry, err := m.store.GetTrendingCache(database.TrendingCacheKey)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	snap := Empty()
	if err := json.Unmarshal(entry.Data, snap); err != nil {
		return nil, fmt.Errorf("decoding trending snapshot: %w", err)
	}
	if snap.Podcasts == nil {
		snap.Podcasts = map[int64]podindex.TrendingPodcast{}
	}
	if snap.Episodes == nil {
		snap.Episodes = map[int64]EpisodeRank{}
	}

	cachedAt, err := entry.CachedAtTime()
	if err != nil {
		return nil, fmt.Errorf("parsing trending cache time %q: %w", entry.CachedAt, err)
	}
	snap.CachedAt = cachedAt
	return snap, nil
}
