// Package server exposes the REST API and a small HTML overview page.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/poddiscover/internal/database"
	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/recommend"
	"github.com/TobiSchelling/poddiscover/internal/transcript"
	"github.com/TobiSchelling/poddiscover/internal/trending"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Directory is the podcast directory as the API uses it.
type Directory interface {
	SearchByTerm(ctx context.Context, query string, max int) ([]podindex.Episode, error)
	EpisodeByID(ctx context.Context, id int64) (*podindex.Episode, error)
	EpisodesByFeed(ctx context.Context, feedID int64, max int) ([]podindex.Episode, error)
	SearchByPerson(ctx context.Context, person string, max int) ([]podindex.Episode, error)
	RandomEpisodes(ctx context.Context, max int, category string) ([]podindex.Episode, error)
}

// Recommender produces recommendations.
type Recommender interface {
	Recommend(ctx context.Context, request string) (*recommend.Result, error)
}

// TrendingSource supplies the trending snapshot.
type TrendingSource interface {
	GetOrRefresh(ctx context.Context) *trending.Snapshot
}

// TranscriptFetcher downloads transcripts.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, url string) (*transcript.Transcript, error)
}

// Deps are the collaborators the server routes to.
type Deps struct {
	DB          *database.DB
	Directory   Directory
	Recommender Recommender
	Trending    TrendingSource
	Transcripts TranscriptFetcher
	CORSOrigins []string
}

// Server is the HTTP server for the API and overview page.
type Server struct {
	deps  Deps
	pages map[string]*template.Template
	mux   *chi.Mux
}

// New creates a new Server.
func New(deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("server needs a database")
	}
	if len(deps.CORSOrigins) == 0 {
		deps.CORSOrigins = []string{"http://localhost:5173"}
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"minutes": func(sec *int) string {
			if sec == nil {
				return "?"
			}
			return fmt.Sprintf("%d min", (*sec+30)/60)
		},
		"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not collide.
	pageNames := []string{"index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{deps: deps, pages: pages, mux: chi.NewRouter()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", s.handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Route("/episodes", func(r chi.Router) {
			r.Get("/search", s.handleSearch)
			r.Get("/random", s.handleRandom)
			r.Get("/feed/{feedID}", s.handleFeedEpisodes)
			r.Get("/person/{person}", s.handlePersonEpisodes)
			r.Get("/{episodeID}", s.handleEpisode)
			r.Get("/{episodeID}/transcript", s.handleTranscript)
		})

		r.Get("/profile", s.handleGetProfile)
		r.Put("/profile", s.handleUpdateProfile)

		r.Post("/feedback", s.handleFeedback)
		r.Get("/history", s.handleHistory)

		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites", s.handleAddFavorite)
		r.Delete("/favorites/{feedID}", s.handleRemoveFavorite)

		r.Get("/mylist", s.handleListMyList)
		r.Post("/mylist", s.handleAddToMyList)
		r.Delete("/mylist/{episodeID}", s.handleRemoveFromMyList)

		r.Post("/recommend", s.handleRecommend)
		r.Get("/trending", s.handleTrending)
		r.Get("/status", s.handleStatus)
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Error().Str("template", name).Msg("Template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Error rendering template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, deps Deps, addr string) error {
	srv, err := New(deps)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", "http://"+addr).Msg("Server listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down server")
		return httpSrv.Shutdown(shutdownCtx)
	}
}
