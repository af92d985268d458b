package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/poddiscover/internal/scoring"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	PodcastIndex PodcastIndex    `yaml:"podcast_index"`
	LLM          LLM             `yaml:"llm"`
	Weights      scoring.Weights `yaml:"weights"`
	Cache        Cache           `yaml:"cache"`
	Recommend    Recommend       `yaml:"recommend"`
	Mentions     Mentions        `yaml:"mentions"`
	Scheduler    Scheduler       `yaml:"scheduler"`
	Server       Server          `yaml:"server"`
	Output       Output          `yaml:"output"`
	Logging      Logging         `yaml:"logging"`
}

type PodcastIndex struct {
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	APISecretEnv      string        `yaml:"api_secret_env"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
}

// Credentials returns the API key and secret from the configured env vars.
func (p PodcastIndex) Credentials() (key, secret string) {
	return os.Getenv(p.APIKeyEnv), os.Getenv(p.APISecretEnv)
}

type LLM struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIAPIKeyEnv string        `yaml:"openai_api_key_env"`
	OllamaURL       string        `yaml:"ollama_url"`
	OllamaModel     string        `yaml:"ollama_model"`
	MaxTokens       int           `yaml:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

type Cache struct {
	TrendingTTL        time.Duration `yaml:"trending_ttl"`
	RecommendationsTTL time.Duration `yaml:"recommendations_ttl"`
	MentionsWindow     time.Duration `yaml:"mentions_window"`
	MentionsTTL        time.Duration `yaml:"mentions_ttl"`
}

type Recommend struct {
	Timeout                  time.Duration `yaml:"timeout"`
	PreferredDurationMinutes float64       `yaml:"preferred_duration_minutes"`
	HistoryLimit             int           `yaml:"history_limit"`
	DescriptionLimit         int           `yaml:"description_limit"`
}

type Mentions struct {
	BaseURL    string        `yaml:"base_url"`
	Sort       string        `yaml:"sort"`
	Subreddits []string      `yaml:"subreddits"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Scheduler struct {
	Enabled      bool   `yaml:"enabled"`
	TrendingSpec string `yaml:"trending_spec"`
	MentionsSpec string `yaml:"mentions_spec"`
}

type Server struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for poddiscover.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "poddiscover")
}

// DataDir returns the XDG data directory for poddiscover.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "poddiscover")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/poddiscover/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'poddiscover init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file. Invalid weights are a load error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults and validating.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		PodcastIndex: PodcastIndex{
			BaseURL:           "https://api.podcastindex.org/api/1.0",
			APIKeyEnv:         "PODCAST_INDEX_KEY",
			APISecretEnv:      "PODCAST_INDEX_SECRET",
			UserAgent:         "pod-discover/0.1.0",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			BreakerFailures:   5,
			BreakerCooldown:   30 * time.Second,
		},
		LLM: LLM{
			Provider:        "anthropic",
			Model:           "claude-haiku-4-5-20251001",
			APIKeyEnv:       "ANTHROPIC_API_KEY",
			OpenAIModel:     "gpt-4o-mini",
			OpenAIAPIKeyEnv: "OPENAI_API_KEY",
			OllamaURL:       "http://localhost:11434",
			OllamaModel:     "qwen2.5:7b",
			MaxTokens:       1024,
			Timeout:         90 * time.Second,
		},
		Weights: scoring.DefaultWeights(),
		Cache: Cache{
			TrendingTTL:        4 * time.Hour,
			RecommendationsTTL: 60 * time.Minute,
			MentionsWindow:     24 * time.Hour,
			MentionsTTL:        6 * time.Hour,
		},
		Recommend: Recommend{
			Timeout:                  2 * time.Minute,
			PreferredDurationMinutes: scoring.DefaultPreferredMinutes,
			HistoryLimit:             15,
			DescriptionLimit:         300,
		},
		Mentions: Mentions{
			BaseURL:    "https://www.reddit.com",
			Sort:       "hot",
			Subreddits: []string{"podcasts", "TrueCrimePodcasts"},
			Timeout:    20 * time.Second,
		},
		Scheduler: Scheduler{
			Enabled:      true,
			TrendingSpec: "@every 4h",
			MentionsSpec: "@every 6h",
		},
		Server: Server{
			Host:        "127.0.0.1",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Logging: Logging{Level: "INFO", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail at request time.
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.Cache.TrendingTTL <= 0 || c.Cache.RecommendationsTTL <= 0 || c.Cache.MentionsWindow <= 0 {
		return fmt.Errorf("cache durations must be positive")
	}
	if c.Recommend.PreferredDurationMinutes <= 0 {
		return fmt.Errorf("recommend.preferred_duration_minutes must be positive")
	}
	switch c.LLM.Provider {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	return nil
}

// ScheduleSpecs returns the cron specs for the trending and mention refresh
// jobs. An empty spec falls back to "@every" the matching cache TTL.
func (c *Config) ScheduleSpecs() (trending, mentions string) {
	trending, mentions = c.Scheduler.TrendingSpec, c.Scheduler.MentionsSpec
	if trending == "" {
		trending = "@every " + c.Cache.TrendingTTL.String()
	}
	if mentions == "" {
		mentions = "@every " + c.Cache.MentionsTTL.String()
	}
	return trending, mentions
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
