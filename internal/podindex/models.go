package podindex

import (
	"sort"
	"time"
)

// Episode is a single published audio item as returned by the directory.
type Episode struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	FeedTitle       string `json:"feed_title"`
	FeedID          int64  `json:"feed_id,omitempty"`
	DurationSeconds *int   `json:"duration_seconds"`
	DatePublished   string `json:"date_published"` // RFC 3339, UTC; empty when unknown
	URL             string `json:"url"`
	Image           string `json:"image,omitempty"`
	TranscriptURL   string `json:"transcript_url,omitempty"`
}

// TrendingPodcast is a feed entry from the directory's trending list.
type TrendingPodcast struct {
	Rank       *int     `json:"rank,omitempty"`
	TrendScore int      `json:"trend_score"`
	Title      string   `json:"title"`
	Author     string   `json:"author,omitempty"`
	URL        string   `json:"url,omitempty"`
	Image      string   `json:"image,omitempty"`
	Language   string   `json:"language,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// rawEpisode mirrors the directory's episode JSON.
type rawEpisode struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	FeedTitle     string `json:"feedTitle"`
	FeedID        int64  `json:"feedId"`
	Duration      *int   `json:"duration"`
	DatePublished int64  `json:"datePublished"`
	Link          string `json:"link"`
	EnclosureURL  string `json:"enclosureUrl"`
	FeedImage     string `json:"feedImage"`
	Image         string `json:"image"`
	TranscriptURL string `json:"transcriptUrl"`
}

type rawTrendingFeed struct {
	ID         int64             `json:"id"`
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	Author     string            `json:"author"`
	Image      string            `json:"image"`
	Artwork    string            `json:"artwork"`
	TrendScore int               `json:"trendScore"`
	Language   string            `json:"language"`
	Categories map[string]string `json:"categories"`
}

func (r rawEpisode) toEpisode() Episode {
	ep := Episode{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		FeedTitle:       r.FeedTitle,
		FeedID:          r.FeedID,
		DurationSeconds: r.Duration,
		URL:             r.Link,
		Image:           r.FeedImage,
		TranscriptURL:   r.TranscriptURL,
	}
	if ep.URL == "" {
		ep.URL = r.EnclosureURL
	}
	if ep.Image == "" {
		ep.Image = r.Image
	}
	if r.DatePublished > 0 {
		ep.DatePublished = time.Unix(r.DatePublished, 0).UTC().Format(time.RFC3339)
	}
	return ep
}

func (r rawTrendingFeed) toTrending(rank int) TrendingPodcast {
	tp := TrendingPodcast{
		Rank:       &rank,
		TrendScore: r.TrendScore,
		Title:      r.Title,
		Author:     r.Author,
		URL:        r.URL,
		Image:      r.Artwork,
		Language:   r.Language,
	}
	if tp.Image == "" {
		tp.Image = r.Image
	}
	for _, name := range r.Categories {
		tp.Categories = append(tp.Categories, name)
	}
	sort.Strings(tp.Categories)
	return tp
}

func toEpisodes(items []rawEpisode, max int) []Episode {
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	episodes := make([]Episode, 0, len(items))
	for _, item := range items {
		episodes = append(episodes, item.toEpisode())
	}
	return episodes
}
