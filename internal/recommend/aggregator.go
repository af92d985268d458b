package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/poddiscover/internal/database"
	"github.com/TobiSchelling/poddiscover/internal/metrics"
	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/trending"
)

// Source names, in merge order.
const (
	SourceQueries          = "ai_queries"
	SourceTrendingEpisodes = "trending_episodes"
	SourceTrendingFeeds    = "trending_feeds"
	SourceMentions         = "mentions"
)

const (
	maxQueries          = 5
	perQueryResults     = 5
	trendingEpisodes    = 10
	topTrendingFeeds    = 5
	perFeedResults      = 2
	topMentionedShows   = 3
	perMentionResults   = 2
	defaultFanOutLimit  = 5
	defaultMentionsSpan = 24 * time.Hour
)

// Directory is the part of the podcast directory the aggregator searches.
type Directory interface {
	SearchByTerm(ctx context.Context, query string, max int) ([]podindex.Episode, error)
	EpisodesByFeed(ctx context.Context, feedID int64, max int) ([]podindex.Episode, error)
	TrendingEpisodes(ctx context.Context, max int) ([]podindex.Episode, error)
}

// MentionSource lists the most mentioned podcast names.
type MentionSource interface {
	TopMentions(window time.Duration, n int) ([]database.MentionCount, error)
}

// Aggregator gathers candidate episodes from four independent sources and
// merges them without duplicates.
type Aggregator struct {
	dir           Directory
	mentions      MentionSource
	mentionWindow time.Duration
	fanOutLimit   int
}

// NewAggregator creates an Aggregator. A non-positive window means 24 hours.
func NewAggregator(dir Directory, mentions MentionSource, mentionWindow time.Duration) *Aggregator {
	if mentionWindow <= 0 {
		mentionWindow = defaultMentionsSpan
	}
	return &Aggregator{
		dir:           dir,
		mentions:      mentions,
		mentionWindow: mentionWindow,
		fanOutLimit:   defaultFanOutLimit,
	}
}

type source struct {
	name  string
	fetch func(context.Context) ([]podindex.Episode, error)
}

// Gather runs all sources concurrently and waits for every one to settle. A
// failing source contributes nothing; the others are unaffected. The first
// occurrence of an episode id wins, in source order: AI queries, trending
// episodes, trending feeds, mentions.
func (a *Aggregator) Gather(ctx context.Context, queries []string, snap *trending.Snapshot) []podindex.Episode {
	sources := []source{
		{SourceQueries, func(ctx context.Context) ([]podindex.Episode, error) { return a.byQueries(ctx, queries) }},
		{SourceTrendingEpisodes, func(ctx context.Context) ([]podindex.Episode, error) {
			return a.dir.TrendingEpisodes(ctx, trendingEpisodes)
		}},
		{SourceTrendingFeeds, func(ctx context.Context) ([]podindex.Episode, error) { return a.byTrendingFeeds(ctx, snap) }},
		{SourceMentions, a.byMentions},
	}

	results := make([][]podindex.Episode, len(sources))
	var g errgroup.Group
	for i, s := range sources {
		g.Go(func() error {
			eps, err := s.fetch(ctx)
			if err != nil {
				metrics.SourceFailures.WithLabelValues(s.name).Inc()
				log.Warn().Err(err).Str("source", s.name).Msg("Candidate source failed")
				return nil
			}
			metrics.SourceCandidates.WithLabelValues(s.name).Add(float64(len(eps)))
			results[i] = eps
			return nil
		})
	}
	_ = g.Wait()

	merged := Dedupe(results...)
	log.Debug().Int("candidates", len(merged)).Msg("Gathered candidates")
	return merged
}

// Dedupe concatenates the lists keeping only the first episode per id.
func Dedupe(lists ...[]podindex.Episode) []podindex.Episode {
	seen := make(map[int64]bool)
	var out []podindex.Episode
	for _, list := range lists {
		for _, ep := range list {
			if seen[ep.ID] {
				continue
			}
			seen[ep.ID] = true
			out = append(out, ep)
		}
	}
	return out
}

func (a *Aggregator) byQueries(ctx context.Context, queries []string) ([]podindex.Episode, error) {
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return fanOut(ctx, a.fanOutLimit, queries, func(ctx context.Context, q string) ([]podindex.Episode, error) {
		return a.dir.SearchByTerm(ctx, q, perQueryResults)
	})
}

func (a *Aggregator) byTrendingFeeds(ctx context.Context, snap *trending.Snapshot) ([]podindex.Episode, error) {
	if snap == nil {
		return nil, nil
	}
	return fanOut(ctx, a.fanOutLimit, snap.TopFeeds(topTrendingFeeds), func(ctx context.Context, feedID int64) ([]podindex.Episode, error) {
		return a.dir.EpisodesByFeed(ctx, feedID, perFeedResults)
	})
}

func (a *Aggregator) byMentions(ctx context.Context) ([]podindex.Episode, error) {
	if a.mentions == nil {
		return nil, nil
	}
	top, err := a.mentions.TopMentions(a.mentionWindow, topMentionedShows)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(top))
	for i, m := range top {
		names[i] = m.Name
	}
	return fanOut(ctx, a.fanOutLimit, names, func(ctx context.Context, name string) ([]podindex.Episode, error) {
		return a.dir.SearchByTerm(ctx, name, perMentionResults)
	})
}

// fanOut calls fetch for every item with at most limit calls in flight and
// concatenates the results in item order. Failed items are skipped; an error
// is returned only when every item failed.
func fanOut[T any](ctx context.Context, limit int, items []T, fetch func(context.Context, T) ([]podindex.Episode, error)) ([]podindex.Episode, error) {
	if len(items) == 0 {
		return nil, nil
	}

	results := make([][]podindex.Episode, len(items))
	errs := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			results[i], errs[i] = fetch(ctx, item)
			if errs[i] != nil {
				log.Debug().Err(errs[i]).Any("item", item).Msg("Candidate fetch failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(items) {
		return nil, errors.Join(errs...)
	}
	return Dedupe(results...), nil
}
