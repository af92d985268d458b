package server

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/poddiscover/internal/llm"
	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/recommend"
)

type recommendRequest struct {
	Request string `json:"request" validate:"max=2000"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recommender == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Recommendations are not available", nil)
		return
	}
	var req recommendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.deps.Recommender.Recommend(r.Context(), req.Request)
	if err != nil {
		var perr *llm.ParseError
		switch {
		case errors.Is(err, recommend.ErrNoProvider):
			writeError(w, r, http.StatusServiceUnavailable, "No language model is configured", err)
		case errors.As(err, &perr):
			writeError(w, r, http.StatusBadGateway, "Language model returned an unusable response", err)
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, r, http.StatusGatewayTimeout, "Recommendation timed out", err)
		default:
			writeError(w, r, http.StatusInternalServerError, "Recommendation failed", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type trendingFeed struct {
	FeedID int64 `json:"feed_id"`
	podindex.TrendingPodcast
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trending == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Trending data is not available", nil)
		return
	}
	limit, ok := queryLimit(w, r, "max_results", 25, 100)
	if !ok {
		return
	}

	snap := s.deps.Trending.GetOrRefresh(r.Context())
	feeds := make([]trendingFeed, 0, limit)
	for _, id := range snap.TopFeeds(limit) {
		feeds = append(feeds, trendingFeed{FeedID: id, TrendingPodcast: snap.Podcasts[id]})
	}

	episodeIDs := make([]int64, 0, len(snap.Episodes))
	for id := range snap.Episodes {
		episodeIDs = append(episodeIDs, id)
	}
	sort.Slice(episodeIDs, func(i, j int) bool {
		return snap.Episodes[episodeIDs[i]].Rank < snap.Episodes[episodeIDs[j]].Rank
	})

	resp := map[string]any{
		"podcasts":    feeds,
		"episode_ids": episodeIDs,
	}
	if !snap.CachedAt.IsZero() {
		resp["cached_at"] = snap.CachedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.DB.GetStats()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not read store statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"database": s.deps.DB.Path(),
		"stats":    stats,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.DB.GetTasteProfile()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not load profile", err)
		return
	}
	favs, err := s.deps.DB.GetFavoriteFeeds()
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("Reading favorite feeds failed")
	}

	data := map[string]any{
		"Profile":   profile,
		"Favorites": favs,
	}

	latest, err := s.deps.DB.LatestCachedRecommendations()
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("Reading latest recommendations failed")
	}
	if latest != nil {
		var res recommend.Result
		if err := json.Unmarshal(latest.Payload, &res); err == nil {
			data["Latest"] = res
			data["LatestRequest"] = latest.UserRequest
			data["LatestAt"] = latest.CreatedAt
		}
	}

	s.render(w, "index.html", data)
}
