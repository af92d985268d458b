// Package podindex is a client for the PodcastIndex directory API.
package podindex

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/poddiscover/internal/metrics"
)

const (
	DefaultBaseURL   = "https://api.podcastindex.org/api/1.0"
	DefaultUserAgent = "pod-discover/0.1.0"

	maxResponseBytes = 8 << 20
)

// ErrNotConfigured is returned by every call when API credentials are missing.
var ErrNotConfigured = errors.New("podcast index credentials not configured")

// StatusError is returned when the directory answers with a non-2xx status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("podcast index %s: HTTP %d: %s", e.Endpoint, e.Code, e.Body)
}

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
}

// Client talks to the PodcastIndex REST API.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	now       func() time.Time
}

// New creates a directory client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	failures := opts.BreakerFailures
	settings := gobreaker.Settings{
		Name:    "podcastindex",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Directory circuit breaker changed state")
		},
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		userAgent: opts.UserAgent,
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		breaker:   gobreaker.NewCircuitBreaker[[]byte](settings),
		now:       time.Now,
	}
}

// IsConfigured returns whether both API key and secret are available.
func (c *Client) IsConfigured() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// SearchByTerm runs a full-text episode search.
func (c *Client) SearchByTerm(ctx context.Context, query string, max int) ([]Episode, error) {
	params := url.Values{
		"q":        {query},
		"max":      {strconv.Itoa(max)},
		"fulltext": {"true"},
	}
	return c.episodeList(ctx, "search/byterm", params, max)
}

// EpisodeByID returns a single episode, or nil when the directory has none.
func (c *Client) EpisodeByID(ctx context.Context, id int64) (*Episode, error) {
	body, err := c.get(ctx, "episodes/byid", url.Values{"id": {strconv.FormatInt(id, 10)}})
	if err != nil {
		return nil, err
	}

	var result struct {
		Episode json.RawMessage `json:"episode"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding episodes/byid: %w", err)
	}

	// A missing episode comes back as an empty array instead of an object.
	raw := bytes.TrimSpace(result.Episode)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil
	}

	var item rawEpisode
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decoding episode %d: %w", id, err)
	}
	if item.ID == 0 {
		return nil, nil
	}
	ep := item.toEpisode()
	return &ep, nil
}

// EpisodesByFeed lists the most recent episodes of a feed.
func (c *Client) EpisodesByFeed(ctx context.Context, feedID int64, max int) ([]Episode, error) {
	params := url.Values{
		"id":  {strconv.FormatInt(feedID, 10)},
		"max": {strconv.Itoa(max)},
	}
	return c.episodeList(ctx, "episodes/byfeedid", params, max)
}

// SearchByPerson finds episodes featuring a host or guest.
func (c *Client) SearchByPerson(ctx context.Context, person string, max int) ([]Episode, error) {
	params := url.Values{
		"q":        {person},
		"max":      {strconv.Itoa(max)},
		"fulltext": {"true"},
	}
	return c.episodeList(ctx, "search/byperson", params, max)
}

// RandomEpisodes returns random English episodes, optionally within a category.
func (c *Client) RandomEpisodes(ctx context.Context, max int, category string) ([]Episode, error) {
	params := url.Values{
		"max":  {strconv.Itoa(max)},
		"lang": {"en"},
	}
	if category != "" {
		params.Set("cat", category)
	}
	return c.episodeList(ctx, "episodes/random", params, max)
}

// TrendingPodcasts returns trending feeds keyed by feed id. Rank is the
// 1-based position in the directory's list.
func (c *Client) TrendingPodcasts(ctx context.Context, max int) (map[int64]TrendingPodcast, error) {
	body, err := c.get(ctx, "podcasts/trending", url.Values{"max": {strconv.Itoa(max)}})
	if err != nil {
		return nil, err
	}

	var result struct {
		Feeds []rawTrendingFeed `json:"feeds"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding podcasts/trending: %w", err)
	}

	feeds := make(map[int64]TrendingPodcast, len(result.Feeds))
	for i, f := range result.Feeds {
		if max > 0 && i >= max {
			break
		}
		if _, seen := feeds[f.ID]; seen {
			continue
		}
		feeds[f.ID] = f.toTrending(i + 1)
	}
	return feeds, nil
}

// TrendingEpisodes returns the directory's global recent-episode feed, in
// rank order.
func (c *Client) TrendingEpisodes(ctx context.Context, max int) ([]Episode, error) {
	return c.episodeList(ctx, "recent/episodes", url.Values{"max": {strconv.Itoa(max)}}, max)
}

func (c *Client) episodeList(ctx context.Context, endpoint string, params url.Values, max int) ([]Episode, error) {
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Items    []rawEpisode `json:"items"`
		Episodes []rawEpisode `json:"episodes"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", endpoint, err)
	}

	items := result.Items
	if len(items) == 0 {
		items = result.Episodes
	}
	return toEpisodes(items, max), nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, endpoint, params)
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.DirectoryRequests.WithLabelValues(endpoint, outcome).Inc()
	log.Debug().Str("endpoint", endpoint).Dur("elapsed", time.Since(start)).Err(err).Msg("Directory request")

	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setAuthHeaders(req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("podcast index %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// setAuthHeaders signs a request: Authorization is the hex SHA-1 of
// key + secret + unix time, and X-Auth-Date must carry the same time.
func (c *Client) setAuthHeaders(h http.Header) {
	date := strconv.FormatInt(c.now().Unix(), 10)
	sum := sha1.Sum([]byte(c.apiKey + c.apiSecret + date))

	h.Set("User-Agent", c.userAgent)
	h.Set("X-Auth-Key", c.apiKey)
	h.Set("X-Auth-Date", date)
	h.Set("Authorization", hex.EncodeToString(sum[:]))
}

// isBreakerSuccess keeps caller mistakes and cancellations from tripping the
// breaker. Only transport failures, 429s and 5xx count against it.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}
