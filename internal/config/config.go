// Package config loads and validates the analyzer configuration from a
// YAML file, .env files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/repopulse/repopulse-go/internal/errors"
	"github.com/repopulse/repopulse-go/internal/models"
)

// Config holds all configuration settings.
type Config struct {
	Repositories []RepositoryConfig `mapstructure:"repositories" yaml:"repositories"`
	Analysis     AnalysisConfig     `mapstructure:"analysis" yaml:"analysis"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Output       OutputConfig       `mapstructure:"output" yaml:"output"`
}

// RepositoryConfig names one repository to analyze. Branch empty means
// resolve the remote default branch; Name empty means derive from the URL.
type RepositoryConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Branch string `mapstructure:"branch" yaml:"branch"`
	Name   string `mapstructure:"name" yaml:"name"`
}

type AnalysisConfig struct {
	PeriodDays int           `mapstructure:"period_days" yaml:"period_days"`
	StaleDays  int           `mapstructure:"stale_days" yaml:"stale_days"` // 0 = same as period_days
	FetchDepth int           `mapstructure:"fetch_depth" yaml:"fetch_depth"`
	TopKFiles  int           `mapstructure:"top_k_files" yaml:"top_k_files"`
	MaxWorkers int           `mapstructure:"max_workers" yaml:"max_workers"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type CacheConfig struct {
	Directory string        `mapstructure:"directory" yaml:"directory"`
	FreshFor  time.Duration `mapstructure:"fresh_for" yaml:"fresh_for"`
}

type LLMConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey            string `mapstructure:"api_key" yaml:"api_key"`
	Model             string `mapstructure:"model" yaml:"model"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

type OutputConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Analysis: AnalysisConfig{
			PeriodDays: 7,
			FetchDepth: 200,
			TopKFiles:  10,
			MaxWorkers: 4,
			Timeout:    10 * time.Minute,
		},
		Cache: CacheConfig{
			Directory: filepath.Join(homeDir, ".repopulse", "cache"),
			FreshFor:  15 * time.Minute,
		},
		LLM: LLMConfig{
			Model:             "gpt-4o-mini",
			RequestsPerMinute: 60,
		},
		Output: OutputConfig{
			File: "report.md",
		},
	}
}

// Load loads configuration from file, .env files and environment.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("analysis", cfg.Analysis)
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("llm", cfg.LLM)
	v.SetDefault("output", cfg.Output)

	v.SetEnvPrefix("REPOPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".repopulse")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".repopulse"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Missing config file is fine, defaults plus env carry the run.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDerivedDefaults(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".repopulse", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if enabled := os.Getenv("REPOPULSE_LLM_ENABLED"); enabled != "" {
		cfg.LLM.Enabled = enabled == "true"
	}
	if dir := os.Getenv("REPOPULSE_CACHE_DIR"); dir != "" {
		cfg.Cache.Directory = expandPath(dir)
	}
	if days := os.Getenv("REPOPULSE_PERIOD_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			cfg.Analysis.PeriodDays = n
		}
	}
	if workers := os.Getenv("REPOPULSE_MAX_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Analysis.MaxWorkers = n
		}
	}
	if file := os.Getenv("REPOPULSE_OUTPUT_FILE"); file != "" {
		cfg.Output.File = expandPath(file)
	}
}

// applyDerivedDefaults resolves settings that default to other settings.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Analysis.StaleDays <= 0 {
		cfg.Analysis.StaleDays = cfg.Analysis.PeriodDays
	}
	cfg.Cache.Directory = expandPath(cfg.Cache.Directory)
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate reports the first invalid setting as an InvalidArgument error.
func (c *Config) Validate() error {
	if len(c.Repositories) == 0 {
		return apperrors.InvalidArgumentErrorf("at least one repository must be configured")
	}
	for i, r := range c.Repositories {
		if strings.TrimSpace(r.URL) == "" {
			return apperrors.InvalidArgumentErrorf("repository %d has no url", i)
		}
	}
	if c.Analysis.PeriodDays < 1 {
		return apperrors.InvalidArgumentErrorf("period_days must be >= 1, got %d", c.Analysis.PeriodDays)
	}
	if c.Analysis.StaleDays < 1 {
		return apperrors.InvalidArgumentErrorf("stale_days must be >= 1, got %d", c.Analysis.StaleDays)
	}
	if c.Analysis.FetchDepth < 1 {
		return apperrors.InvalidArgumentErrorf("fetch_depth must be >= 1, got %d", c.Analysis.FetchDepth)
	}
	if c.Analysis.TopKFiles < 1 {
		return apperrors.InvalidArgumentErrorf("top_k_files must be >= 1, got %d", c.Analysis.TopKFiles)
	}
	if c.Analysis.MaxWorkers < 1 {
		return apperrors.InvalidArgumentErrorf("max_workers must be >= 1, got %d", c.Analysis.MaxWorkers)
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return apperrors.InvalidArgumentErrorf("llm is enabled but no api key is configured")
	}
	return nil
}

// Targets converts the configured repositories to pipeline targets,
// preserving order.
func (c *Config) Targets() []models.RepositoryTarget {
	targets := make([]models.RepositoryTarget, 0, len(c.Repositories))
	for _, r := range c.Repositories {
		name := r.Name
		if name == "" {
			name = nameFromURL(r.URL)
		}
		targets = append(targets, models.RepositoryTarget{
			URL:        r.URL,
			Branch:     r.Branch,
			Name:       name,
			PeriodDays: c.Analysis.PeriodDays,
		})
	}
	return targets
}

// nameFromURL derives a display name from the last path segment of url.
func nameFromURL(url string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(url), "/"), ".git")
	trimmed = strings.ReplaceAll(trimmed, ":", "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return url
	}
	return trimmed
}
