package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "claude-haiku-4-5-20251001" {
		t.Errorf("unexpected model %q", cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens != 1024 {
		t.Errorf("expected max_tokens 1024, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Cache.TrendingTTL != 4*time.Hour {
		t.Errorf("expected trending ttl 4h, got %v", cfg.Cache.TrendingTTL)
	}
	if cfg.Cache.RecommendationsTTL != time.Hour {
		t.Errorf("expected recommendation ttl 60m, got %v", cfg.Cache.RecommendationsTTL)
	}
	if cfg.Cache.MentionsTTL != 6*time.Hour {
		t.Errorf("expected mentions ttl 6h, got %v", cfg.Cache.MentionsTTL)
	}
	if len(cfg.Mentions.Subreddits) != 2 || cfg.Mentions.Subreddits[1] != "TrueCrimePodcasts" {
		t.Errorf("unexpected subreddits %v", cfg.Mentions.Subreddits)
	}
	if cfg.Weights.AIMatch != 0.50 || cfg.Weights.Trending != 0.15 {
		t.Errorf("unexpected weights %+v", cfg.Weights)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:5173" {
		t.Errorf("unexpected cors origins %v", cfg.Server.CORSOrigins)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: ollama
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.LLM.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.LLM.OllamaURL)
	}
	if cfg.Recommend.PreferredDurationMinutes != 30 {
		t.Errorf("expected default preferred duration, got %v", cfg.Recommend.PreferredDurationMinutes)
	}
	if cfg.Weights.Sum() < 0.999 {
		t.Errorf("expected default weights, got %+v", cfg.Weights)
	}
}

func TestParseRejectsBadWeights(t *testing.T) {
	data := []byte(`
weights:
  ai_match: 0.70
`)
	_, err := parse(data)
	if err == nil {
		t.Fatal("expected weights not summing to 1.0 to fail")
	}
	if !strings.Contains(err.Error(), "sum to 1.0") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseAcceptsRebalancedWeights(t *testing.T) {
	data := []byte(`
weights:
  ai_match: 0.40
  duration_match: 0.05
  recency: 0.10
  trending: 0.20
  social_buzz: 0.15
  popularity: 0.10
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("expected rebalanced weights to load: %v", err)
	}
	if cfg.Weights.SocialBuzz != 0.15 {
		t.Errorf("expected social_buzz 0.15, got %v", cfg.Weights.SocialBuzz)
	}
}

func TestParseRejectsUnknownProvider(t *testing.T) {
	if _, err := parse([]byte("llm:\n  provider: carrier-pigeon\n")); err == nil {
		t.Error("expected unknown provider to fail")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.PodcastIndex.APIKeyEnv != "PODCAST_INDEX_KEY" {
		t.Errorf("expected api key env from file, got %q", cfg.PodcastIndex.APIKeyEnv)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("TEST_PI_KEY", "k")
	t.Setenv("TEST_PI_SECRET", "s")
	p := PodcastIndex{APIKeyEnv: "TEST_PI_KEY", APISecretEnv: "TEST_PI_SECRET"}
	key, secret := p.Credentials()
	if key != "k" || secret != "s" {
		t.Errorf("unexpected credentials %q %q", key, secret)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}

func TestScheduleSpecsFallBackToTTL(t *testing.T) {
	cfg, err := parse([]byte(`
scheduler:
  trending_spec: ""
  mentions_spec: "0 */2 * * *"
cache:
  trending_ttl: 3h
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	trending, mentions := cfg.ScheduleSpecs()
	if trending != "@every 3h0m0s" {
		t.Errorf("expected TTL fallback, got %q", trending)
	}
	if mentions != "0 */2 * * *" {
		t.Errorf("expected configured mentions spec, got %q", mentions)
	}
	if cfg.Mentions.Timeout != 20*time.Second {
		t.Errorf("expected default mentions timeout, got %v", cfg.Mentions.Timeout)
	}
}
