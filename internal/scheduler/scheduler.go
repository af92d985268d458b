// Package scheduler runs the refresh pipeline steps on cron schedules while
// the server is up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/poddiscover/internal/pipeline"
)

const (
	DefaultTrendingSpec = "@every 4h"
	DefaultMentionsSpec = "@every 6h"
	defaultJobTimeout   = 5 * time.Minute
)

// Refresher performs the individual refresh steps.
type Refresher interface {
	RefreshTrending(ctx context.Context) pipeline.StepResult
	RefreshMentions(ctx context.Context) pipeline.StepResult
}

// Options configures the schedules.
type Options struct {
	TrendingSpec string
	MentionsSpec string
	JobTimeout   time.Duration
}

// Scheduler triggers refresh steps on their schedules.
type Scheduler struct {
	mu         sync.Mutex
	cron       *cron.Cron
	refresher  Refresher
	jobTimeout time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	last       map[string]pipeline.StepResult
}

// New creates a scheduler. Specs accept standard cron expressions and
// descriptors such as "@every 4h".
func New(r Refresher, opts Options) (*Scheduler, error) {
	if r == nil {
		return nil, errors.New("refresher must not be nil")
	}
	if opts.TrendingSpec == "" {
		opts.TrendingSpec = DefaultTrendingSpec
	}
	if opts.MentionsSpec == "" {
		opts.MentionsSpec = DefaultMentionsSpec
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	logger := cronLogger{log.Logger.With().Str("component", "scheduler").Logger()}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(logger)), cron.WithLogger(logger))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:       c,
		refresher:  r,
		jobTimeout: opts.JobTimeout,
		ctx:        ctx,
		cancel:     cancel,
		last:       make(map[string]pipeline.StepResult),
	}

	if _, err := c.AddFunc(opts.TrendingSpec, func() { s.run(r.RefreshTrending) }); err != nil {
		cancel()
		return nil, fmt.Errorf("add trending schedule %q: %w", opts.TrendingSpec, err)
	}
	if _, err := c.AddFunc(opts.MentionsSpec, func() { s.run(r.RefreshMentions) }); err != nil {
		cancel()
		return nil, fmt.Errorf("add mentions schedule %q: %w", opts.MentionsSpec, err)
	}
	return s, nil
}

// Start begins cron execution. When refreshNow is set both steps also run
// once immediately in the background.
func (s *Scheduler) Start(refreshNow bool) {
	s.cron.Start()
	if refreshNow {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(s.refresher.RefreshTrending)
			s.run(s.refresher.RefreshMentions)
		}()
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Next returns the next scheduled run time of every job.
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Next
	}
	return out
}

// LastResults returns the most recent result per step name.
func (s *Scheduler) LastResults() map[string]pipeline.StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]pipeline.StepResult, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return out
}

func (s *Scheduler) run(step func(context.Context) pipeline.StepResult) {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()

	res := step(ctx)
	s.mu.Lock()
	s.last[res.Name] = res
	s.mu.Unlock()

	if res.Err != nil {
		log.Error().Err(res.Err).Str("step", res.Name).Msg("Scheduled refresh failed")
		return
	}
	log.Info().Str("step", res.Name).Dur("took", res.Duration).Msg(res.Summary)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
