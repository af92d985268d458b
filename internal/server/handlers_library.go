package server

import (
	"net/http"
	"strings"

	"github.com/TobiSchelling/poddiscover/internal/database"
)

type statusResponse struct {
	Status string `json:"status"`
}

var success = statusResponse{Status: "success"}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.DB.GetTasteProfile()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleUpdateProfile merges the fields present in the body into the stored
// profile. Absent fields keep their values.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update database.ProfileUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	profile, err := s.deps.DB.UpdateTasteProfile(update)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type feedbackRequest struct {
	ItemID string  `json:"item_id" validate:"required"`
	Title  string  `json:"title" validate:"required"`
	Rating int     `json:"rating" validate:"gte=1,lte=5"`
	Notes  *string `json:"notes"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.deps.DB.LogConsumption(database.ConsumptionEntry{
		ItemID: strings.TrimSpace(req.ItemID),
		Title:  strings.TrimSpace(req.Title),
		Rating: req.Rating,
		Notes:  req.Notes,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not record feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "entry_id": id})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, "limit", 20, 100)
	if !ok {
		return
	}
	entries, err := s.deps.DB.GetConsumptionHistory(limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not load history", err)
		return
	}
	if entries == nil {
		entries = []database.ConsumptionEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type favoriteRequest struct {
	FeedID    int64  `json:"feed_id" validate:"required,gt=0"`
	FeedTitle string `json:"feed_title" validate:"required"`
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := s.deps.DB.GetFavoriteFeeds()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not load favorites", err)
		return
	}
	if favs == nil {
		favs = []database.FavoriteFeed{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorites": favs})
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.DB.AddFavoriteFeed(req.FeedID, strings.TrimSpace(req.FeedTitle)); err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not add favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	feedID, ok := pathID(w, r, "feedID")
	if !ok {
		return
	}
	if err := s.deps.DB.RemoveFavoriteFeed(feedID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not remove favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

type myListRequest struct {
	EpisodeID    int64   `json:"episode_id" validate:"required,gt=0"`
	EpisodeTitle string  `json:"episode_title" validate:"required"`
	FeedID       *int64  `json:"feed_id"`
	FeedTitle    *string `json:"feed_title"`
	Image        *string `json:"image" validate:"omitempty,url"`
	URL          *string `json:"url" validate:"omitempty,url"`
}

func (s *Server) handleListMyList(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.DB.GetMyList()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not load my list", err)
		return
	}
	if items == nil {
		items = []database.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"episodes": items})
}

func (s *Server) handleAddToMyList(w http.ResponseWriter, r *http.Request) {
	var req myListRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.deps.DB.AddToMyList(database.QueueEntry{
		EpisodeID:    req.EpisodeID,
		EpisodeTitle: strings.TrimSpace(req.EpisodeTitle),
		FeedID:       req.FeedID,
		FeedTitle:    req.FeedTitle,
		Image:        req.Image,
		URL:          req.URL,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not add to my list", err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (s *Server) handleRemoveFromMyList(w http.ResponseWriter, r *http.Request) {
	episodeID, ok := pathID(w, r, "episodeID")
	if !ok {
		return
	}
	if err := s.deps.DB.RemoveFromMyList(episodeID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "Could not remove from my list", err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}
