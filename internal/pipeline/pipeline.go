// Package pipeline runs the background refresh steps that keep the trending
// snapshot and community mention counts current.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/poddiscover/internal/trending"
)

// Step names.
const (
	StepTrending = "Trending"
	StepMentions = "Mentions"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name     string
	Summary  string
	Err      error
	Duration time.Duration
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// TrendingRefresher replaces the trending snapshot.
type TrendingRefresher interface {
	Refresh(ctx context.Context) (*trending.Snapshot, error)
	IsStale(maxAge time.Duration) bool
	TTL() time.Duration
}

// MentionScraper counts podcast names across subreddits.
type MentionScraper interface {
	ParseSubreddits(ctx context.Context, subreddits []string, sort string) map[string]int
}

// MentionStore records scraped counts.
type MentionStore interface {
	IncrementMention(name string, subreddits []string, n int) error
}

// Pipeline orchestrates the refresh steps.
type Pipeline struct {
	trending   TrendingRefresher
	scraper    MentionScraper
	store      MentionStore
	subreddits []string
	sort       string
}

// New creates a new pipeline.
func New(trend TrendingRefresher, scraper MentionScraper, store MentionStore, subreddits []string, sort string) *Pipeline {
	return &Pipeline{
		trending:   trend,
		scraper:    scraper,
		store:      store,
		subreddits: subreddits,
		sort:       sort,
	}
}

// Run executes both steps. A failing step does not stop the next one.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}
	r.Steps = append(r.Steps, p.RefreshTrending(ctx))
	r.Steps = append(r.Steps, p.RefreshMentions(ctx))
	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun() *Result {
	r := &Result{}

	trendingSummary := "[dry-run] Trending snapshot is fresh, a run would replace it anyway"
	if p.trending.IsStale(p.trending.TTL()) {
		trendingSummary = "[dry-run] Trending snapshot is stale or missing, would refresh"
	}
	r.Steps = append(r.Steps, StepResult{Name: StepTrending, Summary: trendingSummary})

	r.Steps = append(r.Steps, StepResult{
		Name:    StepMentions,
		Summary: fmt.Sprintf("[dry-run] Would scrape %d subreddits (%s)", len(p.subreddits), p.sort),
	})
	return r
}

// RefreshTrending fetches and stores a new trending snapshot.
func (p *Pipeline) RefreshTrending(ctx context.Context) StepResult {
	start := time.Now()
	log.Info().Msg("Step 1/2: Refreshing trending cache...")

	snap, err := p.trending.Refresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Trending refresh failed")
		return StepResult{Name: StepTrending, Err: err, Duration: time.Since(start)}
	}
	return StepResult{
		Name:     StepTrending,
		Summary:  fmt.Sprintf("Cached %d trending podcasts and %d trending episodes", len(snap.Podcasts), len(snap.Episodes)),
		Duration: time.Since(start),
	}
}

// RefreshMentions scrapes the configured subreddits and adds the counts to
// the store.
func (p *Pipeline) RefreshMentions(ctx context.Context) StepResult {
	start := time.Now()
	log.Info().Msg("Step 2/2: Refreshing community mentions...")

	if len(p.subreddits) == 0 {
		return StepResult{Name: StepMentions, Summary: "No subreddits configured", Duration: time.Since(start)}
	}

	counts := p.scraper.ParseSubreddits(ctx, p.subreddits, p.sort)
	if err := ctx.Err(); err != nil {
		return StepResult{Name: StepMentions, Err: err, Duration: time.Since(start)}
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := p.store.IncrementMention(name, p.subreddits, counts[name]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	res := StepResult{
		Name:     StepMentions,
		Summary:  fmt.Sprintf("Recorded %d podcast names from %d subreddits", len(names)-len(errs), len(p.subreddits)),
		Duration: time.Since(start),
	}
	if len(errs) > 0 {
		res.Err = errors.Join(errs...)
		log.Error().Err(res.Err).Int("failed", len(errs)).Msg("Storing mention counts failed")
	}
	return res
}
