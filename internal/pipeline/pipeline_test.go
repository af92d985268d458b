package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/trending"
)

type fakeTrending struct {
	err   error
	stale bool
	calls int
}

func (f *fakeTrending) Refresh(context.Context) (*trending.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	snap := trending.Empty()
	snap.Podcasts[1] = podindex.TrendingPodcast{Title: "One"}
	snap.Episodes[10] = trending.EpisodeRank{Rank: 0}
	snap.Episodes[11] = trending.EpisodeRank{Rank: 1}
	return snap, nil
}

func (f *fakeTrending) IsStale(time.Duration) bool { return f.stale }
func (f *fakeTrending) TTL() time.Duration         { return 4 * time.Hour }

type fakeScraper struct {
	counts map[string]int
	subs   []string
}

func (f *fakeScraper) ParseSubreddits(_ context.Context, subs []string, _ string) map[string]int {
	f.subs = subs
	return f.counts
}

type fakeStore struct {
	got    map[string]int
	failOn string
}

func (f *fakeStore) IncrementMention(name string, _ []string, n int) error {
	if name == f.failOn {
		return errors.New("constraint failed")
	}
	if f.got == nil {
		f.got = map[string]int{}
	}
	f.got[name] += n
	return nil
}

func TestRunBothSteps(t *testing.T) {
	tr := &fakeTrending{}
	sc := &fakeScraper{counts: map[string]int{"serial": 3, "criminal": 1}}
	st := &fakeStore{}
	p := New(tr, sc, st, []string{"podcasts"}, "hot")

	res := p.Run(context.Background())
	require.Len(t, res.Steps, 2)
	assert.False(t, res.Failed())
	assert.Equal(t, StepTrending, res.Steps[0].Name)
	assert.Equal(t, "Cached 1 trending podcasts and 2 trending episodes", res.Steps[0].Summary)
	assert.Equal(t, "Recorded 2 podcast names from 1 subreddits", res.Steps[1].Summary)
	assert.Equal(t, map[string]int{"serial": 3, "criminal": 1}, st.got)
	assert.Equal(t, []string{"podcasts"}, sc.subs)
}

func TestTrendingFailureDoesNotStopMentions(t *testing.T) {
	tr := &fakeTrending{err: errors.New("401 unauthorized")}
	st := &fakeStore{}
	p := New(tr, &fakeScraper{counts: map[string]int{"lore": 2}}, st, []string{"podcasts"}, "hot")

	res := p.Run(context.Background())
	assert.True(t, res.Failed())
	assert.Error(t, res.Steps[0].Err)
	assert.NoError(t, res.Steps[1].Err)
	assert.Equal(t, 2, st.got["lore"])
}

func TestMentionStoreErrorsAreReported(t *testing.T) {
	st := &fakeStore{failOn: "bad"}
	p := New(&fakeTrending{}, &fakeScraper{counts: map[string]int{"bad": 1, "good": 1}}, st, []string{"podcasts"}, "hot")

	step := p.RefreshMentions(context.Background())
	assert.Error(t, step.Err)
	assert.Equal(t, 1, st.got["good"])
	assert.Contains(t, step.Summary, "Recorded 1 podcast names")
}

func TestMentionsWithoutSubreddits(t *testing.T) {
	sc := &fakeScraper{}
	step := New(&fakeTrending{}, sc, &fakeStore{}, nil, "hot").RefreshMentions(context.Background())
	assert.NoError(t, step.Err)
	assert.Nil(t, sc.subs)
}

func TestDryRunDoesNotFetch(t *testing.T) {
	tr := &fakeTrending{stale: true}
	res := New(tr, &fakeScraper{}, &fakeStore{}, []string{"a", "b"}, "new").DryRun()

	require.Len(t, res.Steps, 2)
	assert.Contains(t, res.Steps[0].Summary, "stale")
	assert.Contains(t, res.Steps[1].Summary, "2 subreddits")
	assert.Zero(t, tr.calls)
}
