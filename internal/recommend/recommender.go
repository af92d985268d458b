// Package recommend turns a listener's profile and an optional free-text
// request into a ranked list of podcast episodes.
//
// A call generates search queries with the language model, gathers candidates
// from several directory sources, asks the model to rank them, then blends the
// model's judgment with trending, social, recency and duration signals.
// Results are cached per fingerprint of the inputs.
package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/poddiscover/internal/database"
	"github.com/TobiSchelling/poddiscover/internal/llm"
	"github.com/TobiSchelling/poddiscover/internal/metrics"
	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/scoring"
	"github.com/TobiSchelling/poddiscover/internal/trending"
)

// ErrNoProvider is returned when a fresh recommendation is needed but no
// language model is configured.
var ErrNoProvider = errors.New("no language model provider configured")

// Store is the listener state and cache storage the recommender reads and writes.
type Store interface {
	MentionSource
	GetTasteProfile() (database.TasteProfile, error)
	GetFavoriteFeeds() ([]database.FavoriteFeed, error)
	GetConsumptionHistory(limit int) ([]database.ConsumptionEntry, error)
	GetCachedRecommendations(profileHash, userRequest string, maxAge time.Duration) ([]byte, error)
	SetCachedRecommendations(profileHash, userRequest string, payload []byte) error
	GetMentionCounts(window time.Duration) (map[string]int, error)
}

// TrendingSource supplies the current trending snapshot.
type TrendingSource interface {
	GetOrRefresh(ctx context.Context) *trending.Snapshot
}

// RecommendedEpisode is a candidate the model chose, with its scores.
type RecommendedEpisode struct {
	podindex.Episode
	MatchScore     int                `json:"match_score"`
	MatchReason    string             `json:"match_reason"`
	CompositeScore float64            `json:"composite_score"`
	ScoreBreakdown scoring.Components `json:"score_breakdown"`
}

// Result is the outcome of one recommend call.
type Result struct {
	Episodes    []RecommendedEpisode `json:"episodes"`
	QueriesUsed []string             `json:"queries_used"`
	Usage       llm.Usage            `json:"usage"`
	Cached      bool                 `json:"cached"`
}

// Options tunes a Recommender.
type Options struct {
	Weights                  scoring.Weights
	CacheTTL                 time.Duration
	MentionsWindow           time.Duration
	Timeout                  time.Duration
	PreferredDurationMinutes float64
	HistoryLimit             int
	DescriptionLimit         int
	MaxTokens                int
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		Weights:                  scoring.DefaultWeights(),
		CacheTTL:                 60 * time.Minute,
		MentionsWindow:           24 * time.Hour,
		Timeout:                  2 * time.Minute,
		PreferredDurationMinutes: scoring.DefaultPreferredMinutes,
		HistoryLimit:             15,
		DescriptionLimit:         300,
		MaxTokens:                1024,
	}
}

// Recommender drives query generation, candidate gathering, ranking and scoring.
type Recommender struct {
	store    Store
	provider llm.Provider
	trending TrendingSource
	agg      *Aggregator
	opts     Options
	now      func() time.Time
}

// New creates a Recommender. It fails if the weights do not sum to 1.
func New(store Store, dir Directory, provider llm.Provider, trend TrendingSource, opts Options) (*Recommender, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring weights: %w", err)
	}
	def := DefaultOptions()
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}
	if opts.MentionsWindow <= 0 {
		opts.MentionsWindow = def.MentionsWindow
	}
	if opts.PreferredDurationMinutes <= 0 {
		opts.PreferredDurationMinutes = def.PreferredDurationMinutes
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = def.HistoryLimit
	}
	if opts.DescriptionLimit <= 0 {
		opts.DescriptionLimit = def.DescriptionLimit
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	return &Recommender{
		store:    store,
		provider: provider,
		trending: trend,
		agg:      NewAggregator(dir, store, opts.MentionsWindow),
		opts:     opts,
		now:      time.Now,
	}, nil
}

// Recommend returns episodes for the listener, optionally steered by a
// free-text request. Identical inputs within the cache window return the
// stored result flagged as cached. A malformed model response fails the
// whole call; no partial list is returned.
func (r *Recommender) Recommend(ctx context.Context, request string) (*Result, error) {
	start := time.Now()
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	res, err := r.recommend(ctx, request)

	outcome := "fresh"
	switch {
	case err != nil:
		outcome = "error"
	case res.Cached:
		outcome = "cached"
	case len(res.Episodes) == 0:
		outcome = "empty"
	}
	metrics.RecommendTotal.WithLabelValues(outcome).Inc()
	metrics.RecommendDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return res, err
}

func (r *Recommender) recommend(ctx context.Context, request string) (*Result, error) {
	lc, err := r.loadContext()
	if err != nil {
		return nil, fmt.Errorf("loading listener context: %w", err)
	}

	fingerprint := Fingerprint(lc.profile, lc.favorites, lc.history, request)
	if cached := r.cached(fingerprint, request); cached != nil {
		log.Info().Str("fingerprint", fingerprint[:12]).Msg("Serving cached recommendations")
		return cached, nil
	}

	if r.provider == nil || !r.provider.IsConfigured() {
		return nil, ErrNoProvider
	}

	resp, err := r.provider.Generate(ctx, buildSearchPrompt(lc, request), r.opts.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("generating search queries: %w", err)
	}
	usage := resp.Usage
	queries, err := llm.ParseQueries(resp.Text)
	if err != nil {
		return nil, err
	}
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	log.Info().Strs("queries", queries).Msg("Generated search queries")

	snap := r.trending.GetOrRefresh(ctx)
	candidates := r.agg.Gather(ctx, queries, snap)
	if len(candidates) == 0 {
		log.Info().Msg("No candidates found, skipping ranking")
		recordUsage(usage)
		return &Result{Episodes: []RecommendedEpisode{}, QueriesUsed: queries, Usage: usage}, nil
	}

	mentions, err := r.store.GetMentionCounts(r.opts.MentionsWindow)
	if err != nil {
		log.Warn().Err(err).Msg("Reading mention counts failed, continuing without social signal")
		mentions = map[string]int{}
	}

	summary, err := candidatesSummary(candidates, r.opts.DescriptionLimit)
	if err != nil {
		return nil, fmt.Errorf("summarizing candidates: %w", err)
	}
	resp, err = r.provider.Generate(ctx, buildRankPrompt(lc, summary), r.opts.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("ranking candidates: %w", err)
	}
	usage = usage.Add(resp.Usage)
	rankings, err := llm.ParseRankings(resp.Text)
	if err != nil {
		return nil, err
	}
	recordUsage(usage)

	episodes := r.score(candidates, rankings, snap, mentions, preferredMinutes(lc.taste, r.opts.PreferredDurationMinutes))
	result := &Result{Episodes: episodes, QueriesUsed: queries, Usage: usage}

	payload, err := json.Marshal(result)
	if err == nil {
		err = r.store.SetCachedRecommendations(fingerprint, request, payload)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Caching recommendations failed")
	}

	log.Info().
		Int("candidates", len(candidates)).
		Int("ranked", len(rankings)).
		Int("recommended", len(episodes)).
		Int("input_tokens", usage.InputTokens).
		Int("output_tokens", usage.OutputTokens).
		Msg("Recommendations ready")
	return result, nil
}

func (r *Recommender) loadContext() (listenerContext, error) {
	var lc listenerContext
	var err error

	if lc.taste, err = r.store.GetTasteProfile(); err != nil {
		return lc, fmt.Errorf("profile: %w", err)
	}
	if lc.profile, err = profileSummary(lc.taste); err != nil {
		return lc, fmt.Errorf("profile: %w", err)
	}
	favs, err := r.store.GetFavoriteFeeds()
	if err != nil {
		return lc, fmt.Errorf("favorites: %w", err)
	}
	lc.favorites = favoritesSummary(favs)
	history, err := r.store.GetConsumptionHistory(r.opts.HistoryLimit)
	if err != nil {
		return lc, fmt.Errorf("history: %w", err)
	}
	lc.history = historySummary(history)
	return lc, nil
}

// cached returns the stored result for the key, or nil. Read and decode
// failures count as a miss.
func (r *Recommender) cached(fingerprint, request string) *Result {
	payload, err := r.store.GetCachedRecommendations(fingerprint, request, r.opts.CacheTTL)
	if err != nil {
		log.Warn().Err(err).Msg("Reading recommendation cache failed")
		return nil
	}
	if payload == nil {
		return nil
	}
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable cached recommendations")
		return nil
	}
	res.Cached = true
	return &res
}

// score walks the rankings in the model's order, keeping the first episode
// per feed, then sorts by composite score. Candidates the model did not rank
// are dropped.
func (r *Recommender) score(candidates []podindex.Episode, rankings []llm.Ranking, snap *trending.Snapshot, mentions map[string]int, preferred float64) []RecommendedEpisode {
	byID := make(map[int64]podindex.Episode, len(candidates))
	for _, ep := range candidates {
		byID[ep.ID] = ep
	}
	if snap == nil {
		snap = trending.Empty()
	}

	now := r.now()
	emitted := make(map[int64]bool)
	feeds := make(map[int64]bool)
	out := make([]RecommendedEpisode, 0, len(rankings))
	for _, rk := range rankings {
		ep, ok := byID[rk.ID]
		if !ok || emitted[rk.ID] {
			continue
		}
		if ep.FeedID != 0 && feeds[ep.FeedID] {
			continue
		}
		emitted[rk.ID] = true
		if ep.FeedID != 0 {
			feeds[ep.FeedID] = true
		}

		c := scoring.Components{
			AIMatch:    float64(rk.Score) / 10,
			Duration:   scoring.DurationMatch(ep, preferred),
			Recency:    scoring.Recency(ep, now),
			Trending:   scoring.Trending(ep.FeedID, snap.Podcasts),
			Social:     scoring.Social(NormalizeName(ep.FeedTitle), mentions),
			Popularity: scoring.Popularity(ep),
		}
		out = append(out, RecommendedEpisode{
			Episode:        ep,
			MatchScore:     rk.Score,
			MatchReason:    rk.Reason,
			CompositeScore: scoring.Composite(c, r.opts.Weights),
			ScoreBreakdown: c,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompositeScore > out[j].CompositeScore
	})
	return out
}

// Fingerprint is the cache key over everything that shapes a recommendation.
func Fingerprint(profile, favorites, history, request string) string {
	sum := sha256.Sum256([]byte(profile + "|" + favorites + "|" + history + "|" + request))
	return hex.EncodeToString(sum[:])
}

// NormalizeName maps a podcast title onto the form mention counts are stored under.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// preferredMinutes picks the duration to score against: the midpoint of the
// profile's bounds, a single bound, or the fallback.
func preferredMinutes(p database.TasteProfile, fallback float64) float64 {
	switch {
	case p.PreferredDurationMin != nil && p.PreferredDurationMax != nil:
		return float64(*p.PreferredDurationMin+*p.PreferredDurationMax) / 2
	case p.PreferredDurationMin != nil:
		return float64(*p.PreferredDurationMin)
	case p.PreferredDurationMax != nil:
		return float64(*p.PreferredDurationMax)
	default:
		return fallback
	}
}

func recordUsage(u llm.Usage) {
	metrics.LLMTokens.WithLabelValues("input").Add(float64(u.InputTokens))
	metrics.LLMTokens.WithLabelValues("output").Add(float64(u.OutputTokens))
}
