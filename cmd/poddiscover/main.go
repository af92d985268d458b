package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/poddiscover/internal/config"
	"github.com/TobiSchelling/poddiscover/internal/database"
	"github.com/TobiSchelling/poddiscover/internal/llm"
	"github.com/TobiSchelling/poddiscover/internal/logging"
	"github.com/TobiSchelling/poddiscover/internal/mentions"
	"github.com/TobiSchelling/poddiscover/internal/pipeline"
	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/recommend"
	"github.com/TobiSchelling/poddiscover/internal/transcript"
	"github.com/TobiSchelling/poddiscover/internal/trending"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "poddiscover",
	Short:   "Podcast episode recommendations",
	Long:    "poddiscover recommends podcast episodes from your taste profile, listening history, trending charts and community buzz.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logging.Init(logging.Config{Level: levelFor("info")})
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Init(logging.Config{
			Level:  levelFor(cfg.Logging.Level),
			Format: cfg.Logging.Format,
			Caller: verbose,
		})
		log.Debug().Str("config", path).Msg("Loaded config")
		return nil
	},
}

func levelFor(level string) string {
	if verbose {
		return "debug"
	}
	return level
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(queueCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("poddiscover", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/poddiscover/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set PODCAST_INDEX_KEY, PODCAST_INDEX_SECRET and ANTHROPIC_API_KEY, then run 'poddiscover refresh'.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		dir := newDirectory()
		trend := trending.NewManager(db, dir, cfg.Cache.TrendingTTL)

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Library:")
		fmt.Printf("  History entries: %d\n", stats.HistoryEntries)
		fmt.Printf("  Favorite podcasts: %d\n", stats.Favorites)
		fmt.Printf("  Queued episodes: %d\n", stats.QueuedEpisodes)
		fmt.Println("\nCaches:")
		fmt.Printf("  Cached recommendations: %d\n", stats.CachedResults)
		fmt.Printf("  Tracked mentions: %d\n", stats.TrackedMentions)
		switch {
		case stats.TrendingCached == nil:
			fmt.Println("  Trending: never fetched")
		case trend.IsStale(cfg.Cache.TrendingTTL):
			fmt.Printf("  Trending: stale (cached %s UTC)\n", *stats.TrendingCached)
		default:
			fmt.Printf("  Trending: fresh (cached %s UTC)\n", *stats.TrendingCached)
		}
		fmt.Println("\nServices:")
		fmt.Printf("  Podcast directory: %s\n", configured(dir.IsConfigured()))
		fmt.Printf("  Language model: %s\n", configured(newProvider() != nil))
		return nil
	},
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "poddiscover.db")
	return database.Open(dbPath)
}

func newDirectory() *podindex.Client {
	key, secret := cfg.PodcastIndex.Credentials()
	return podindex.New(podindex.Options{
		BaseURL:           cfg.PodcastIndex.BaseURL,
		APIKey:            key,
		APISecret:         secret,
		UserAgent:         cfg.PodcastIndex.UserAgent,
		Timeout:           cfg.PodcastIndex.Timeout,
		RequestsPerSecond: cfg.PodcastIndex.RequestsPerSecond,
		BreakerFailures:   cfg.PodcastIndex.BreakerFailures,
		BreakerCooldown:   cfg.PodcastIndex.BreakerCooldown,
	})
}

func newProvider() llm.Provider {
	return llm.CreateProvider(llm.Options{
		Provider:        cfg.LLM.Provider,
		Model:           cfg.LLM.Model,
		APIKeyEnv:       cfg.LLM.APIKeyEnv,
		OpenAIModel:     cfg.LLM.OpenAIModel,
		OpenAIAPIKeyEnv: cfg.LLM.OpenAIAPIKeyEnv,
		OllamaURL:       cfg.LLM.OllamaURL,
		OllamaModel:     cfg.LLM.OllamaModel,
		Timeout:         cfg.LLM.Timeout,
	})
}

// app holds the collaborators shared by the serve, recommend and refresh
// commands.
type app struct {
	db          *database.DB
	dir         *podindex.Client
	trending    *trending.Manager
	recommender *recommend.Recommender
	pipeline    *pipeline.Pipeline
	transcripts *transcript.Fetcher
}

func newApp() (*app, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}

	dir := newDirectory()
	if !dir.IsConfigured() {
		log.Warn().Msg("PodcastIndex credentials missing; directory calls will fail")
	}
	trend := trending.NewManager(db, dir, cfg.Cache.TrendingTTL)

	// A nil provider is allowed: cached results are still served.
	rec, err := recommend.New(db, dir, newProvider(), trend, recommend.Options{
		Weights:                  cfg.Weights,
		CacheTTL:                 cfg.Cache.RecommendationsTTL,
		MentionsWindow:           cfg.Cache.MentionsWindow,
		Timeout:                  cfg.Recommend.Timeout,
		PreferredDurationMinutes: cfg.Recommend.PreferredDurationMinutes,
		HistoryLimit:             cfg.Recommend.HistoryLimit,
		DescriptionLimit:         cfg.Recommend.DescriptionLimit,
		MaxTokens:                cfg.LLM.MaxTokens,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	parser := mentions.NewParser(cfg.Mentions.BaseURL, cfg.Mentions.Timeout)

	return &app{
		db:          db,
		dir:         dir,
		trending:    trend,
		recommender: rec,
		pipeline:    pipeline.New(trend, parser, db, cfg.Mentions.Subreddits, cfg.Mentions.Sort),
		transcripts: transcript.NewFetcher(cfg.PodcastIndex.Timeout, transcript.DefaultMaxChars),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
