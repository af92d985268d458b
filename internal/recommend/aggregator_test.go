package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TobiSchelling/poddiscover/internal/database"
	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/trending"
)

func ids(eps []podindex.Episode) []int64 {
	out := make([]int64, len(eps))
	for i, ep := range eps {
		out[i] = ep.ID
	}
	return out
}

func trendingSnapshot(feedRanks map[int64]int) *trending.Snapshot {
	snap := trending.Empty()
	for id, r := range feedRanks {
		snap.Podcasts[id] = podindex.TrendingPodcast{Rank: &r}
	}
	return snap
}

func TestGatherMergesInSourceOrderWithoutDuplicates(t *testing.T) {
	dir := &fakeDirectory{
		byTerm: map[string][]podindex.Episode{
			"jazz":     {episode(1, 10, "A"), episode(2, 20, "B")},
			"serial":   {episode(5, 50, "Serial"), episode(1, 10, "A")},
			"radiolab": {episode(6, 60, "Radiolab")},
		},
		trending: []podindex.Episode{episode(2, 20, "B"), episode(3, 30, "C")},
		byFeed: map[int64][]podindex.Episode{
			70: {episode(7, 70, "T1"), episode(3, 30, "C")},
		},
	}
	store := newFakeStore()
	store.top = []database.MentionCount{{Name: "serial", Count: 9}, {Name: "radiolab", Count: 4}}

	got := NewAggregator(dir, store, 0).Gather(context.Background(), []string{"jazz"}, trendingSnapshot(map[int64]int{70: 1}))

	assert.Equal(t, []int64{1, 2, 3, 7, 5, 6}, ids(got))
}

func TestGatherIsolatesFailingSources(t *testing.T) {
	dir := &fakeDirectory{
		byTerm:      map[string][]podindex.Episode{"jazz": {episode(1, 10, "A")}},
		trendingErr: errors.New("directory timeout"),
	}
	store := newFakeStore()
	store.topErr = errors.New("database locked")

	got := NewAggregator(dir, store, 0).Gather(context.Background(), []string{"jazz"}, nil)
	assert.Equal(t, []int64{1}, ids(got))
}

func TestGatherSkipsFailingQuery(t *testing.T) {
	dir := &fakeDirectory{
		byTerm:  map[string][]podindex.Episode{"b": {episode(2, 20, "B")}},
		termErr: map[string]error{"a": errors.New("boom")},
	}
	got := NewAggregator(dir, newFakeStore(), 0).Gather(context.Background(), []string{"a", "b"}, nil)
	assert.Equal(t, []int64{2}, ids(got))
}

func TestGatherUsesAtMostFiveQueries(t *testing.T) {
	dir := &fakeDirectory{}
	NewAggregator(dir, newFakeStore(), 0).Gather(context.Background(), []string{"1", "2", "3", "4", "5", "6", "7"}, nil)
	assert.ElementsMatch(t, []string{"1", "2", "3", "4", "5"}, dir.terms)
}

func TestGatherTopTrendingFeedsByRank(t *testing.T) {
	byFeed := map[int64][]podindex.Episode{}
	ranks := map[int64]int{}
	for i := int64(1); i <= 7; i++ {
		feed := i * 100
		ranks[feed] = int(8 - i) // feed 700 is rank 1
		byFeed[feed] = []podindex.Episode{episode(feed+1, feed, "x"), episode(feed+2, feed, "x"), episode(feed+3, feed, "x")}
	}
	dir := &fakeDirectory{byFeed: byFeed}

	got := NewAggregator(dir, newFakeStore(), 0).Gather(context.Background(), nil, trendingSnapshot(ranks))

	assert.Equal(t, []int64{701, 702, 601, 602, 501, 502, 401, 402, 301, 302}, ids(got))
}

func TestGatherAllSourcesEmpty(t *testing.T) {
	got := NewAggregator(&fakeDirectory{}, newFakeStore(), 0).Gather(context.Background(), nil, trending.Empty())
	assert.Empty(t, got)
}

func TestFanOutReportsTotalFailure(t *testing.T) {
	_, err := fanOut(context.Background(), 2, []string{"a", "b"}, func(context.Context, string) ([]podindex.Episode, error) {
		return nil, errors.New("down")
	})
	assert.Error(t, err)
}

func TestDedupe(t *testing.T) {
	a := []podindex.Episode{{ID: 1, Title: "first"}, {ID: 2}}
	b := []podindex.Episode{{ID: 1, Title: "second"}, {ID: 3}}
	got := Dedupe(a, nil, b)
	assert.Equal(t, []int64{1, 2, 3}, ids(got))
	assert.Equal(t, "first", got[0].Title)
}
