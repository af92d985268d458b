package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/transcript"
)

type episodesResponse struct {
	Episodes []podindex.Episode `json:"episodes"`
}

func episodeList(eps []podindex.Episode) episodesResponse {
	if eps == nil {
		eps = []podindex.Episode{}
	}
	return episodesResponse{Episodes: eps}
}

// directoryError maps a failed directory call onto an HTTP status.
func directoryError(w http.ResponseWriter, r *http.Request, err error) {
	var se *podindex.StatusError
	switch {
	case errors.Is(err, podindex.ErrNotConfigured):
		writeError(w, r, http.StatusServiceUnavailable, "Podcast directory credentials are not configured", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "Podcast directory timed out", err)
	case errors.As(err, &se):
		writeError(w, r, http.StatusBadGateway, "Podcast directory returned an error", err)
	default:
		writeError(w, r, http.StatusBadGateway, "Podcast directory request failed", err)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "q is required", nil)
		return
	}
	max, ok := queryLimit(w, r, "max_results", 10, 50)
	if !ok {
		return
	}
	eps, err := s.deps.Directory.SearchByTerm(r.Context(), q, max)
	if err != nil {
		directoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, episodeList(eps))
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	max, ok := queryLimit(w, r, "max_results", 5, 20)
	if !ok {
		return
	}
	eps, err := s.deps.Directory.RandomEpisodes(r.Context(), max, strings.TrimSpace(r.URL.Query().Get("category")))
	if err != nil {
		directoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, episodeList(eps))
}

func (s *Server) handleFeedEpisodes(w http.ResponseWriter, r *http.Request) {
	feedID, ok := pathID(w, r, "feedID")
	if !ok {
		return
	}
	max, ok := queryLimit(w, r, "max_results", 20, 50)
	if !ok {
		return
	}
	eps, err := s.deps.Directory.EpisodesByFeed(r.Context(), feedID, max)
	if err != nil {
		directoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, episodeList(eps))
}

func (s *Server) handlePersonEpisodes(w http.ResponseWriter, r *http.Request) {
	person := strings.TrimSpace(chi.URLParam(r, "person"))
	max, ok := queryLimit(w, r, "max_results", 10, 50)
	if !ok {
		return
	}
	eps, err := s.deps.Directory.SearchByPerson(r.Context(), person, max)
	if err != nil {
		directoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, episodeList(eps))
}

func (s *Server) lookupEpisode(w http.ResponseWriter, r *http.Request) (*podindex.Episode, bool) {
	id, ok := pathID(w, r, "episodeID")
	if !ok {
		return nil, false
	}
	ep, err := s.deps.Directory.EpisodeByID(r.Context(), id)
	if err != nil {
		directoryError(w, r, err)
		return nil, false
	}
	if ep == nil {
		writeError(w, r, http.StatusNotFound, "Episode not found", nil)
		return nil, false
	}
	return ep, true
}

func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.lookupEpisode(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.lookupEpisode(w, r)
	if !ok {
		return
	}
	if s.deps.Transcripts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "Transcript fetching is disabled", nil)
		return
	}

	t, err := s.deps.Transcripts.Fetch(r.Context(), ep.TranscriptURL)
	switch {
	case errors.Is(err, transcript.ErrNoTranscript):
		writeError(w, r, http.StatusNotFound, "Episode has no transcript", nil)
		return
	case err != nil:
		writeError(w, r, http.StatusBadGateway, "Could not fetch transcript", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"episode_id": ep.ID,
		"title":      ep.Title,
		"transcript": t,
	})
}
