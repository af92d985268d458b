// Package scoring turns episode and context signals into normalized scores.
//
// Every function returns a value in [0, 1] and has no side effects. The
// composite score blends the individual signals using configured Weights.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/TobiSchelling/poddiscover/internal/podindex"
)

const (
	trendingDecay     = 0.025
	recencyHalfLife   = 25.0 // days
	durationSigma     = 27.0 // minutes
	popularityNeutral = 0.5

	// DefaultPreferredMinutes is used when the listener states no preference.
	DefaultPreferredMinutes = 30.0
)

// Components holds the individual signals that make up a composite score.
type Components struct {
	AIMatch    float64 `json:"ai_match"`
	Duration   float64 `json:"duration"`
	Recency    float64 `json:"recency"`
	Trending   float64 `json:"trending"`
	Social     float64 `json:"social"`
	Popularity float64 `json:"popularity"`
}

// TrendingRank scores a trending position with exponential decay.
// Rank 1 scores about 0.975, rank 10 about 0.78, rank 100 about 0.08.
func TrendingRank(rank int) float64 {
	return clamp(math.Exp(-trendingDecay * float64(rank)))
}

// Trending scores a feed by its rank in the trending podcasts map. Feeds that
// are absent or carry no rank score 0.
func Trending(feedID int64, feeds map[int64]podindex.TrendingPodcast) float64 {
	feed, ok := feeds[feedID]
	if !ok || feed.Rank == nil {
		return 0
	}
	return TrendingRank(*feed.Rank)
}

// Social scores a podcast name by its community mention count. The lookup is
// an exact, case-sensitive match; callers normalize names beforehand.
func Social(name string, mentions map[string]int) float64 {
	return SocialCount(mentions[name])
}

// SocialCount maps a mention count onto the piecewise social curve:
// 0 -> 0, 1-4 -> 0.3..0.6, 5-9 -> 0.7..0.9, 10+ -> 1.0.
func SocialCount(mentions int) float64 {
	switch {
	case mentions <= 0:
		return 0
	case mentions >= 10:
		return 1
	case mentions >= 5:
		return 0.7 + float64(mentions-5)*(0.9-0.7)/(9-5)
	default:
		return 0.3 + float64(mentions-1)*(0.6-0.3)/(4-1)
	}
}

// Popularity is a neutral placeholder until the directory exposes a real
// popularity signal.
func Popularity(podindex.Episode) float64 {
	return popularityNeutral
}

// Recency scores an episode by age with a 25 day half-life. Missing or
// unparseable publish timestamps score 0.
func Recency(ep podindex.Episode, now time.Time) float64 {
	published, ok := ParseTimestamp(ep.DatePublished)
	if !ok {
		return 0
	}
	ageDays := now.UTC().Sub(published).Hours() / 24
	return clamp(math.Exp(-ageDays * math.Ln2 / recencyHalfLife))
}

// timestampLayouts are tried in order. Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 publish timestamp and normalizes it to UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// DurationMatch scores how close an episode runs to the preferred length,
// using a Gaussian with a 27 minute sigma. Episodes without a duration score 0.
func DurationMatch(ep podindex.Episode, preferredMinutes float64) float64 {
	if ep.DurationSeconds == nil {
		return 0
	}
	diff := float64(*ep.DurationSeconds)/60.0 - preferredMinutes
	return clamp(math.Exp(-(diff * diff) / (2 * durationSigma * durationSigma)))
}

// Composite blends the components with the given weights. The result is
// clamped to [0, 1] even for misconfigured weights.
func Composite(c Components, w Weights) float64 {
	total := c.Trending*w.Trending +
		c.Social*w.SocialBuzz +
		c.Popularity*w.Popularity +
		c.Recency*w.Recency +
		c.Duration*w.DurationMatch +
		c.AIMatch*w.AIMatch
	return clamp(total)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
