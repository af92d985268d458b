package server

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/poddiscover/internal/database"
	"github.com/TobiSchelling/poddiscover/internal/llm"
	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/recommend"
	"github.com/TobiSchelling/poddiscover/internal/transcript"
	"github.com/TobiSchelling/poddiscover/internal/trending"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(v int) *int { return &v }

type fakeDirectory struct {
	episodes map[int64]podindex.Episode
	err      error
	lastTerm string
	lastMax  int
}

func (f *fakeDirectory) SearchByTerm(_ context.Context, q string, max int) ([]podindex.Episode, error) {
	f.lastTerm, f.lastMax = q, max
	if f.err != nil {
		return nil, f.err
	}
	var out []podindex.Episode
	for _, ep := range f.episodes {
		if strings.Contains(strings.ToLower(ep.Title), strings.ToLower(q)) {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (f *fakeDirectory) EpisodeByID(_ context.Context, id int64) (*podindex.Episode, error) {
	if f.err != nil {
		return nil, f.err
	}
	ep, ok := f.episodes[id]
	if !ok {
		return nil, nil
	}
	return &ep, nil
}

func (f *fakeDirectory) EpisodesByFeed(_ context.Context, feedID int64, max int) ([]podindex.Episode, error) {
	f.lastMax = max
	var out []podindex.Episode
	for _, ep := range f.episodes {
		if ep.FeedID == feedID {
			out = append(out, ep)
		}
	}
	return out, f.err
}

func (f *fakeDirectory) SearchByPerson(_ context.Context, person string, max int) ([]podindex.Episode, error) {
	f.lastTerm, f.lastMax = person, max
	return nil, f.err
}

func (f *fakeDirectory) RandomEpisodes(_ context.Context, max int, _ string) ([]podindex.Episode, error) {
	f.lastMax = max
	return nil, f.err
}

type fakeRecommender struct {
	result  *recommend.Result
	err     error
	request string
}

func (f *fakeRecommender) Recommend(_ context.Context, request string) (*recommend.Result, error) {
	f.request = request
	return f.result, f.err
}

type staticTrending struct{ snap *trending.Snapshot }

func (s staticTrending) GetOrRefresh(context.Context) *trending.Snapshot { return s.snap }

type fakeTranscripts struct {
	err error
}

func (f fakeTranscripts) Fetch(_ context.Context, url string) (*transcript.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	if url == "" {
		return nil, transcript.ErrNoTranscript
	}
	return &transcript.Transcript{URL: url, Format: transcript.FormatPlain, Text: "hello there"}, nil
}

func newTestServer(t *testing.T, db *database.DB, deps Deps) *Server {
	t.Helper()
	deps.DB = db
	if deps.Directory == nil {
		deps.Directory = &fakeDirectory{}
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestNewRequiresDB(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error without database")
	}
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	notes := "I like **long** interviews"
	if _, err := db.UpdateTasteProfile(database.ProfileUpdate{Notes: &notes}); err != nil {
		t.Fatalf("UpdateTasteProfile: %v", err)
	}
	srv := newTestServer(t, db, Deps{})

	rec := do(t, srv, "GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Pod Discover") {
		t.Error("expected page title in response body")
	}
	if !strings.Contains(body, "<strong>long</strong>") {
		t.Error("expected notes rendered as markdown")
	}
	if !strings.Contains(body, "No recommendations yet") {
		t.Error("expected empty recommendations message")
	}
}

func TestIndexLogsFavoritesFailure(t *testing.T) {
	db := openTestDB(t)
	raw, err := sql.Open("sqlite", db.Path())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := raw.Exec(`DROP TABLE favorite_feeds`); err != nil {
		t.Fatalf("drop favorite_feeds: %v", err)
	}
	raw.Close()

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	srv := newTestServer(t, db, Deps{})
	rec := do(t, srv, "GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "Reading favorite feeds failed") {
		t.Errorf("expected favorites failure to be logged, got %q", buf.String())
	}
}

func TestIndexShowsLatestRecommendations(t *testing.T) {
	db := openTestDB(t)
	res := recommend.Result{
		Episodes: []recommend.RecommendedEpisode{{
			Episode:        podindex.Episode{ID: 1, Title: "Deep Sea Mysteries", FeedTitle: "Ocean Hour", DurationSeconds: intPtr(1800)},
			MatchScore:     9,
			MatchReason:    "Matches your *ocean* interest",
			CompositeScore: 0.82,
		}},
		QueriesUsed: []string{"ocean science"},
	}
	payload, _ := json.Marshal(res)
	if err := db.SetCachedRecommendations("hash", "oceans", payload); err != nil {
		t.Fatalf("SetCachedRecommendations: %v", err)
	}
	srv := newTestServer(t, db, Deps{})

	rec := do(t, srv, "GET", "/", "")
	body := rec.Body.String()
	for _, want := range []string{"Deep Sea Mysteries", "Ocean Hour", "82%", "30 min", "<em>ocean</em>", "ocean science"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in index page", want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})

	rec := do(t, srv, "GET", "/api/profile", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID")
	}

	req := httptest.NewRequest("GET", "/api/profile", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected upstream request id to be kept, got %q", got)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})

	rec := do(t, srv, "GET", "/api/profile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var profile database.TasteProfile
	decode(t, rec, &profile)
	if profile.PreferredDepth != database.DepthModerate {
		t.Errorf("expected default depth, got %q", profile.PreferredDepth)
	}

	rec = do(t, srv, "PUT", "/api/profile", `{"preferred_depth":"deep-dive","preferred_duration_max":60}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &profile)
	if profile.PreferredDepth != database.DepthDeepDive {
		t.Errorf("depth not updated: %q", profile.PreferredDepth)
	}
	if profile.PreferredDurationMax == nil || *profile.PreferredDurationMax != 60 {
		t.Errorf("max duration not updated: %v", profile.PreferredDurationMax)
	}

	// A second partial update leaves earlier fields alone.
	rec = do(t, srv, "PUT", "/api/profile", `{"notes":"more science"}`)
	decode(t, rec, &profile)
	if profile.PreferredDepth != database.DepthDeepDive || profile.Notes != "more science" {
		t.Errorf("partial update lost fields: %+v", profile)
	}
}

func TestProfileValidation(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad depth", `{"preferred_depth":"extreme"}`, http.StatusUnprocessableEntity},
		{"negative duration", `{"preferred_duration_min":-5}`, http.StatusUnprocessableEntity},
		{"topic weight above one", `{"topic_interests":{"science":1.5}}`, http.StatusUnprocessableEntity},
		{"malformed json", `{"preferred_depth":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, "PUT", "/api/profile", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestFeedbackAndHistory(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})

	rec := do(t, srv, "POST", "/api/feedback", `{"item_id":"42","title":"Great Episode","rating":5,"notes":"loved it"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Status  string `json:"status"`
		EntryID int64  `json:"entry_id"`
	}
	decode(t, rec, &created)
	if created.Status != "success" || created.EntryID == 0 {
		t.Errorf("unexpected feedback response: %+v", created)
	}

	rec = do(t, srv, "GET", "/api/history?limit=5", "")
	var hist struct {
		Entries []database.ConsumptionEntry `json:"entries"`
	}
	decode(t, rec, &hist)
	if len(hist.Entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(hist.Entries))
	}
	if hist.Entries[0].ItemType != database.DefaultItemType || hist.Entries[0].Rating != 5 {
		t.Errorf("unexpected entry: %+v", hist.Entries[0])
	}
}

func TestFeedbackValidation(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})

	for _, body := range []string{
		`{"item_id":"1","title":"T","rating":6}`,
		`{"item_id":"1","title":"T","rating":0}`,
		`{"item_id":"1","rating":3}`,
		`{"title":"T","rating":3}`,
	} {
		rec := do(t, srv, "POST", "/api/feedback", body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", body, rec.Code)
		}
		var e apiError
		decode(t, rec, &e)
		if e.Detail == "" || e.RequestID == "" {
			t.Errorf("%s: expected detail and request id, got %+v", body, e)
		}
	}
}

func TestHistoryLimitValidation(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})

	if rec := do(t, srv, "GET", "/api/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("non-integer limit: expected 400, got %d", rec.Code)
	}
	if rec := do(t, srv, "GET", "/api/history?limit=500", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("oversized limit: expected 422, got %d", rec.Code)
	}
	rec := do(t, srv, "GET", "/api/history", "")
	if !strings.Contains(rec.Body.String(), `"entries":[]`) {
		t.Errorf("expected empty entries array, got %s", rec.Body.String())
	}
}

func TestFavoritesRoutes(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})

	rec := do(t, srv, "POST", "/api/favorites", `{"feed_id":920666,"feed_title":"Science Weekly"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	// Adding twice is idempotent.
	do(t, srv, "POST", "/api/favorites", `{"feed_id":920666,"feed_title":"Science Weekly"}`)

	var favs struct {
		Favorites []database.FavoriteFeed `json:"favorites"`
	}
	decode(t, do(t, srv, "GET", "/api/favorites", ""), &favs)
	if len(favs.Favorites) != 1 || favs.Favorites[0].FeedTitle != "Science Weekly" {
		t.Fatalf("unexpected favorites: %+v", favs.Favorites)
	}

	if rec := do(t, srv, "DELETE", "/api/favorites/920666", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	decode(t, do(t, srv, "GET", "/api/favorites", ""), &favs)
	if len(favs.Favorites) != 0 {
		t.Errorf("expected no favorites after delete, got %d", len(favs.Favorites))
	}

	if rec := do(t, srv, "POST", "/api/favorites", `{"feed_id":0,"feed_title":"X"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero feed id: expected 422, got %d", rec.Code)
	}
	if rec := do(t, srv, "DELETE", "/api/favorites/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad feed id: expected 400, got %d", rec.Code)
	}
}

func TestMyListRoutes(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})

	rec := do(t, srv, "POST", "/api/mylist", `{"episode_id":7,"episode_title":"Later","feed_title":"Show","url":"https://example.com/ep7"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var list struct {
		Episodes []database.QueueEntry `json:"episodes"`
	}
	decode(t, do(t, srv, "GET", "/api/mylist", ""), &list)
	if len(list.Episodes) != 1 || list.Episodes[0].EpisodeID != 7 {
		t.Fatalf("unexpected list: %+v", list.Episodes)
	}

	if rec := do(t, srv, "POST", "/api/mylist", `{"episode_id":8,"episode_title":"Bad","url":"not a url"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad url: expected 422, got %d", rec.Code)
	}

	do(t, srv, "DELETE", "/api/mylist/7", "")
	decode(t, do(t, srv, "GET", "/api/mylist", ""), &list)
	if len(list.Episodes) != 0 {
		t.Errorf("expected empty list after delete, got %d", len(list.Episodes))
	}
}

func TestEpisodeRoutes(t *testing.T) {
	dir := &fakeDirectory{episodes: map[int64]podindex.Episode{
		1: {ID: 1, Title: "Quantum Basics", FeedID: 10, TranscriptURL: "https://example.com/t.vtt"},
		2: {ID: 2, Title: "Cooking Quantum", FeedID: 10},
	}}
	srv := newTestServer(t, openTestDB(t), Deps{Directory: dir, Transcripts: fakeTranscripts{}})

	var list episodesResponse
	rec := do(t, srv, "GET", "/api/episodes/search?q=quantum&max_results=3", "")
	decode(t, rec, &list)
	if len(list.Episodes) != 2 || dir.lastMax != 3 {
		t.Errorf("search: got %d episodes, max %d", len(list.Episodes), dir.lastMax)
	}

	if rec := do(t, srv, "GET", "/api/episodes/search", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing q: expected 422, got %d", rec.Code)
	}

	rec = do(t, srv, "GET", "/api/episodes/person/Jane%20Doe", "")
	if !strings.Contains(rec.Body.String(), `"episodes":[]`) || dir.lastTerm != "Jane Doe" {
		t.Errorf("person search: body %s, term %q", rec.Body.String(), dir.lastTerm)
	}

	rec = do(t, srv, "GET", "/api/episodes/1", "")
	var ep podindex.Episode
	decode(t, rec, &ep)
	if ep.Title != "Quantum Basics" {
		t.Errorf("unexpected episode: %+v", ep)
	}

	if rec := do(t, srv, "GET", "/api/episodes/99", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown episode: expected 404, got %d", rec.Code)
	}

	rec = do(t, srv, "GET", "/api/episodes/1/transcript", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hello there") {
		t.Errorf("transcript: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, srv, "GET", "/api/episodes/2/transcript", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing transcript: expected 404, got %d", rec.Code)
	}
}

func TestDirectoryErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{podindex.ErrNotConfigured, http.StatusServiceUnavailable},
		{fmt.Errorf("search: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{&podindex.StatusError{Code: 500}, http.StatusBadGateway},
		{errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		srv := newTestServer(t, openTestDB(t), Deps{Directory: &fakeDirectory{err: tt.err}})
		rec := do(t, srv, "GET", "/api/episodes/random", "")
		if rec.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
	}
}

func TestRecommendRoute(t *testing.T) {
	rec := &fakeRecommender{result: &recommend.Result{
		Episodes: []recommend.RecommendedEpisode{{
			Episode:    podindex.Episode{ID: 3, Title: "Black Holes"},
			MatchScore: 8,
		}},
		QueriesUsed: []string{"astronomy"},
	}}
	srv := newTestServer(t, openTestDB(t), Deps{Recommender: rec})

	resp := do(t, srv, "POST", "/api/recommend", `{"request":"something about space"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if rec.request != "something about space" {
		t.Errorf("request not passed through: %q", rec.request)
	}
	var res recommend.Result
	decode(t, resp, &res)
	if len(res.Episodes) != 1 || res.Episodes[0].MatchScore != 8 {
		t.Errorf("unexpected result: %+v", res)
	}

	// The request is optional.
	if resp := do(t, srv, "POST", "/api/recommend", ""); resp.Code != http.StatusOK {
		t.Errorf("empty body: expected 200, got %d", resp.Code)
	}
}

func TestRecommendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no provider", recommend.ErrNoProvider, http.StatusServiceUnavailable},
		{"bad model output", fmt.Errorf("ranking: %w", &llm.ParseError{Stage: llm.StageRankings, Err: errors.New("eof")}), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, openTestDB(t), Deps{Recommender: &fakeRecommender{err: tt.err}})
			resp := do(t, srv, "POST", "/api/recommend", `{}`)
			if resp.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.Code)
			}
		})
	}
}

func TestTrendingRoute(t *testing.T) {
	snap := trending.Empty()
	snap.Podcasts[100] = podindex.TrendingPodcast{Title: "Second", Rank: intPtr(2)}
	snap.Podcasts[200] = podindex.TrendingPodcast{Title: "First", Rank: intPtr(1)}
	snap.Episodes[5] = trending.EpisodeRank{Rank: 1}
	snap.Episodes[6] = trending.EpisodeRank{Rank: 0}
	snap.CachedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(t, openTestDB(t), Deps{Trending: staticTrending{snap: snap}})

	resp := do(t, srv, "GET", "/api/trending?max_results=1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Podcasts []struct {
			FeedID int64  `json:"feed_id"`
			Title  string `json:"title"`
		} `json:"podcasts"`
		EpisodeIDs []int64 `json:"episode_ids"`
	}
	decode(t, resp, &body)
	if len(body.Podcasts) != 1 || body.Podcasts[0].FeedID != 200 || body.Podcasts[0].Title != "First" {
		t.Errorf("unexpected podcasts: %+v", body.Podcasts)
	}
	if len(body.EpisodeIDs) != 2 || body.EpisodeIDs[0] != 6 {
		t.Errorf("expected episode ids ordered by rank, got %v", body.EpisodeIDs)
	}
}

func TestStatusRoute(t *testing.T) {
	db := openTestDB(t)
	db.AddFavoriteFeed(1, "Show")
	srv := newTestServer(t, db, Deps{})

	resp := do(t, srv, "GET", "/api/status", "")
	var body struct {
		Database string         `json:"database"`
		Stats    database.Stats `json:"stats"`
	}
	decode(t, resp, &body)
	if body.Database == "" || body.Stats.Favorites != 1 {
		t.Errorf("unexpected status: %+v", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})
	resp := do(t, srv, "GET", "/metrics", "")
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Code)
	}
}

func TestStaticFiles(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Deps{})
	resp := do(t, srv, "GET", "/static/style.css", "")
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Code)
	}
}
