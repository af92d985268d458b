// Package mentions counts podcast names mentioned in community RSS feeds.
package mentions

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/poddiscover/internal/metrics"
)

const (
	DefaultBaseURL = "https://www.reddit.com"
	DefaultSort    = "hot"

	userAgent = "pod-discover/0.1.0 (mention scraper)"
)

var (
	doubleQuoted = regexp.MustCompile(`"([^"]+)"`)
	singleQuoted = regexp.MustCompile(`'([^']+)'`)

	// A capitalized name, stopped lazily by a filler word, punctuation or end of text.
	keywordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`podcast[:\s]+([A-Z][A-Za-z\s]{2,30}?)(?:\s+(?:is|was|these|those|days|today|now|here|there)|[.,!?]|$)`),
		regexp.MustCompile(`listening to\s+([A-Z][A-Za-z\s]{2,30}?)(?:\s+(?:is|was|these|those|days|today|now|here|there)|[.,!?]|$)`),
		regexp.MustCompile(`check out\s+([A-Z][A-Za-z\s]{2,30}?)(?:\s+(?:is|was|these|those|days|today|now|here|there)|[.,!?]|$)`),
	}
)

// Parser reads subreddit feeds.
type Parser struct {
	baseURL string
	feeds   *gofeed.Parser
}

// NewParser creates a Parser. An empty baseURL means DefaultBaseURL.
func NewParser(baseURL string, timeout time.Duration) *Parser {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	fp := gofeed.NewParser()
	fp.UserAgent = userAgent
	fp.Client = &http.Client{Timeout: timeout}
	return &Parser{baseURL: strings.TrimRight(baseURL, "/"), feeds: fp}
}

// ParseSubreddit counts names per entry of one subreddit feed. Scraping is
// best effort: failures are logged and yield an empty map.
func (p *Parser) ParseSubreddit(ctx context.Context, subreddit, sort string) map[string]int {
	if sort == "" {
		sort = DefaultSort
	}
	url := fmt.Sprintf("%s/r/%s/%s.rss", p.baseURL, subreddit, sort)

	feed, err := p.feeds.ParseURLWithContext(url, ctx)
	if err != nil {
		log.Warn().Err(err).Str("subreddit", subreddit).Msg("Failed to parse subreddit feed")
		return map[string]int{}
	}

	counts := make(map[string]int)
	for _, item := range feed.Items {
		body := item.Description
		if body == "" {
			body = item.Content
		}
		for _, name := range ExtractNames(item.Title + " " + stripHTML(body)) {
			counts[name]++
		}
	}

	metrics.MentionsScraped.WithLabelValues(subreddit).Add(float64(len(counts)))
	log.Debug().Str("subreddit", subreddit).Int("entries", len(feed.Items)).Int("names", len(counts)).Msg("Parsed subreddit")
	return counts
}

// ParseSubreddits parses each subreddit in turn and sums the counts.
func (p *Parser) ParseSubreddits(ctx context.Context, subreddits []string, sort string) map[string]int {
	all := make([]map[string]int, 0, len(subreddits))
	for _, sub := range subreddits {
		if ctx.Err() != nil {
			break
		}
		all = append(all, p.ParseSubreddit(ctx, sub, sort))
	}
	return Aggregate(all...)
}

// Aggregate sums name counts across several maps.
func Aggregate(counts ...map[string]int) map[string]int {
	out := make(map[string]int)
	for _, m := range counts {
		for name, n := range m {
			out[name] += n
		}
	}
	return out
}

// ExtractNames returns candidate podcast names in text: quoted strings first,
// then names following "podcast", "listening to" or "check out". Names are
// lowercased and deduplicated in order of first appearance.
func ExtractNames(text string) []string {
	var names []string

	for _, re := range []*regexp.Regexp{doubleQuoted, singleQuoted} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m[1]) > 2 {
				names = append(names, strings.ToLower(strings.TrimSpace(m[1])))
			}
		}
	}

	for _, re := range keywordPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(m[1])
			if len(name) > 2 {
				names = append(names, strings.ToLower(name))
			}
		}
	}

	seen := make(map[string]bool, len(names))
	unique := names[:0]
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		unique = append(unique, n)
	}
	return unique
}

func stripHTML(text string) string {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	s := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&#x27;", "'",
	).Replace(b.String())
	return strings.Join(strings.Fields(s), " ")
}
