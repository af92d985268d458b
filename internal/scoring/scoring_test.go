package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/poddiscover/internal/podindex"
)

func intPtr(v int) *int { return &v }

func TestTrendingRankDecay(t *testing.T) {
	assert.InDelta(t, 0.975, TrendingRank(1), 0.001)
	assert.InDelta(t, 0.779, TrendingRank(10), 0.001)
	assert.InDelta(t, 0.472, TrendingRank(30), 0.001)
	assert.InDelta(t, 0.082, TrendingRank(100), 0.001)
	assert.GreaterOrEqual(t, TrendingRank(1), 0.95)

	for r := 0; r < 200; r++ {
		assert.Greater(t, TrendingRank(r), TrendingRank(r+1), "rank %d", r)
	}
}

func TestTrendingLookup(t *testing.T) {
	feeds := map[int64]podindex.TrendingPodcast{
		10: {Rank: intPtr(1), Title: "Top"},
		20: {Title: "No rank"},
	}

	assert.InDelta(t, 0.975, Trending(10, feeds), 0.001)
	assert.Equal(t, 0.0, Trending(20, feeds))
	assert.Equal(t, 0.0, Trending(30, feeds))
	assert.Equal(t, 0.0, Trending(10, nil))
}

func TestSocial(t *testing.T) {
	mentions := map[string]int{
		"zero":   0,
		"one":    1,
		"three":  3,
		"four":   4,
		"five":   5,
		"seven":  7,
		"nine":   9,
		"ten":    10,
		"plenty": 42,
	}

	assert.Equal(t, 0.0, Social("zero", mentions))
	assert.InDelta(t, 0.3, Social("one", mentions), 1e-9)
	assert.InDelta(t, 0.6, Social("four", mentions), 1e-9)
	assert.InDelta(t, 0.7, Social("five", mentions), 1e-9)
	assert.InDelta(t, 0.9, Social("nine", mentions), 1e-9)
	assert.Equal(t, 1.0, Social("ten", mentions))
	assert.Equal(t, 1.0, Social("plenty", mentions))

	seven := Social("seven", mentions)
	assert.True(t, seven >= 0.7 && seven <= 0.9, "got %v", seven)
	three := Social("three", mentions)
	assert.True(t, three >= 0.3 && three <= 0.6, "got %v", three)

	assert.Equal(t, 0.0, Social("unknown", mentions))
	assert.Equal(t, 0.0, Social("anything", nil))
}

func TestSocialIsCaseSensitive(t *testing.T) {
	mentions := map[string]int{"x": 10}
	assert.Equal(t, 1.0, Social("x", mentions))
	assert.Equal(t, 0.0, Social("X", mentions))
}

func TestPopularityIsNeutral(t *testing.T) {
	assert.Equal(t, 0.5, Popularity(podindex.Episode{}))
	assert.Equal(t, 0.5, Popularity(podindex.Episode{ID: 1, Title: "Anything"}))
}

func TestRecency(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(age time.Duration) podindex.Episode {
		return podindex.Episode{DatePublished: now.Add(-age).Format(time.RFC3339)}
	}

	assert.GreaterOrEqual(t, Recency(at(0), now), 0.95)

	five := Recency(at(5*24*time.Hour), now)
	assert.True(t, five >= 0.8 && five <= 1.0, "5 days: %v", five)

	fourteen := Recency(at(14*24*time.Hour), now)
	assert.True(t, fourteen >= 0.5 && fourteen <= 0.8, "14 days: %v", fourteen)

	assert.Less(t, Recency(at(60*24*time.Hour), now), 0.5)
	assert.InDelta(t, 0.5, Recency(at(25*24*time.Hour), now), 0.001)
}

func TestRecencyMissingOrInvalid(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0.0, Recency(podindex.Episode{}, now))
	assert.Equal(t, 0.0, Recency(podindex.Episode{DatePublished: "not a date"}, now))
	assert.Equal(t, 0.0, Recency(podindex.Episode{DatePublished: "1700000000"}, now))
}

func TestRecencyFutureClamped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ep := podindex.Episode{DatePublished: now.Add(48 * time.Hour).Format(time.RFC3339)}
	assert.Equal(t, 1.0, Recency(ep, now))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 2, 20, 8, 30, 0, 0, time.UTC)

	cases := []string{
		"2026-02-20T08:30:00Z",
		"2026-02-20T08:30:00+00:00",
		"2026-02-20T09:30:00+01:00",
		"2026-02-20T08:30:00",
		"2026-02-20 08:30:00",
		"2026-02-20T08:30",
	}
	for _, in := range cases {
		got, ok := ParseTimestamp(in)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), "%s parsed as %v", in, got)
		assert.Equal(t, time.UTC, got.Location(), in)
	}

	got, ok := ParseTimestamp("2026-02-20")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseTimestamp("")
	assert.False(t, ok)
}

func TestDurationMatch(t *testing.T) {
	ep := func(minutes int) podindex.Episode {
		return podindex.Episode{DurationSeconds: intPtr(minutes * 60)}
	}

	assert.Equal(t, 1.0, DurationMatch(ep(30), 30))

	five := DurationMatch(ep(35), 30)
	assert.True(t, five >= 0.8 && five <= 1.0, "5 min: %v", five)

	assert.InDelta(t, math.Exp(-100.0/(2*27*27)), DurationMatch(ep(40), 30), 1e-9)

	twenty := DurationMatch(ep(10), 30)
	assert.True(t, twenty >= 0.5 && twenty <= 0.8, "20 min: %v", twenty)

	assert.Less(t, DurationMatch(ep(90), 30), 0.5)
	assert.Equal(t, 0.0, DurationMatch(podindex.Episode{}, 30))
}

func TestComposite(t *testing.T) {
	w := DefaultWeights()

	all := Components{AIMatch: 1, Duration: 1, Recency: 1, Trending: 1, Social: 1, Popularity: 1}
	assert.InDelta(t, 1.0, Composite(all, w), 1e-3)

	assert.Equal(t, 0.0, Composite(Components{}, w))

	aiOnly := Components{AIMatch: 1}
	assert.InDelta(t, w.AIMatch, Composite(aiOnly, w), 1e-3)

	mixed := Components{AIMatch: 0.8, Duration: 0.4, Recency: 0.9, Trending: 0.2, Social: 0.7, Popularity: 0.5}
	want := 0.8*0.50 + 0.4*0.05 + 0.9*0.10 + 0.2*0.15 + 0.7*0.10 + 0.5*0.10
	assert.InDelta(t, want, Composite(mixed, w), 1e-9)
}

func TestCompositeStaysInRange(t *testing.T) {
	w := DefaultWeights()
	steps := []float64{0, 0.25, 0.5, 0.75, 1}
	for _, a := range steps {
		for _, b := range steps {
			for _, c := range steps {
				got := Composite(Components{AIMatch: a, Duration: b, Recency: c, Trending: a, Social: b, Popularity: c}, w)
				assert.True(t, got >= 0 && got <= 1, "composite %v out of range", got)
			}
		}
	}

	heavy := Weights{AIMatch: 2, Trending: 2}
	assert.Equal(t, 1.0, Composite(Components{AIMatch: 1, Trending: 1}, heavy))
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)

	off := DefaultWeights()
	off.AIMatch = 0.6
	err := off.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")

	nearly := DefaultWeights()
	nearly.AIMatch += 0.0005
	assert.NoError(t, nearly.Validate())

	negative := DefaultWeights()
	negative.AIMatch = 0.7
	negative.Popularity = -0.1
	assert.Error(t, negative.Validate())
}
