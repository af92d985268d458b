// Package metrics exposes Prometheus collectors for the recommendation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecommendTotal counts recommend calls by outcome (fresh, cached, empty, error).
	RecommendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poddiscover_recommend_total",
			Help: "Total number of recommend calls by outcome",
		},
		[]string{"outcome"},
	)

	// RecommendDuration tracks end-to-end recommend latency.
	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poddiscover_recommend_duration_seconds",
			Help:    "Duration of recommend calls in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// SourceCandidates counts candidates contributed by each aggregation source.
	SourceCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poddiscover_source_candidates_total",
			Help: "Candidate episodes contributed per aggregation source",
		},
		[]string{"source"},
	)

	// SourceFailures counts aggregation sources that failed and contributed nothing.
	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poddiscover_source_failures_total",
			Help: "Aggregation source failures",
		},
		[]string{"source"},
	)

	// LLMTokens counts language-model tokens by direction (input, output).
	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poddiscover_llm_tokens_total",
			Help: "Language model tokens consumed",
		},
		[]string{"direction"},
	)

	// DirectoryRequests counts PodcastIndex calls by endpoint and outcome.
	DirectoryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poddiscover_directory_requests_total",
			Help: "Podcast directory API requests",
		},
		[]string{"endpoint", "outcome"},
	)

	// TrendingRefreshes counts trending snapshot refreshes by outcome.
	TrendingRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poddiscover_trending_refresh_total",
			Help: "Trending snapshot refreshes",
		},
		[]string{"outcome"},
	)

	// MentionsScraped counts podcast names extracted per subreddit.
	MentionsScraped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poddiscover_mentions_scraped_total",
			Help: "Podcast name mentions extracted from community feeds",
		},
		[]string{"subreddit"},
	)
)
