package config

// Package config handles configuration loading for the sentiment pipeline.
// It supports YAML config files with environment variable overrides.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	News     NewsConfig     `mapstructure:"news"     yaml:"news"`
	Scorer   ScorerConfig   `mapstructure:"scorer"   yaml:"scorer"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Calendar CalendarConfig `mapstructure:"calendar" yaml:"calendar"`
	Roster   RosterConfig   `mapstructure:"roster"   yaml:"roster"`
	Output   OutputConfig   `mapstructure:"output"   yaml:"output"`
	Status   StatusConfig   `mapstructure:"status"   yaml:"status"`
	Watch    WatchConfig    `mapstructure:"watch"    yaml:"watch"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// NewsConfig holds news source adapter settings.
type NewsConfig struct {
	Provider          string  `mapstructure:"provider"            yaml:"provider"` // "polygon", "rss" or "polygon+rss"
	PolygonKey        string  `mapstructure:"polygon_key"         yaml:"polygon_key"`
	PolygonURL        string  `mapstructure:"polygon_url"         yaml:"polygon_url"`
	RSSURL            string  `mapstructure:"rss_url"             yaml:"rss_url"` // %s is replaced by the ticker
	Limit             int     `mapstructure:"limit"               yaml:"limit"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	TimeoutSec        int     `mapstructure:"timeout_sec"         yaml:"timeout_sec"`
	CacheTTL          int     `mapstructure:"cache_ttl"           yaml:"cache_ttl"`    // seconds
	FetchBodies       bool    `mapstructure:"fetch_bodies"        yaml:"fetch_bodies"` // replace thin bodies with the linked page text
}

// ScorerConfig holds sentiment scorer settings.
type ScorerConfig struct {
	Provider    string  `mapstructure:"provider"     yaml:"provider"` // "ollama" or "keyword"
	OllamaURL   string  `mapstructure:"ollama_url"   yaml:"ollama_url"`
	Model       string  `mapstructure:"model"        yaml:"model"`
	Temperature float64 `mapstructure:"temperature"  yaml:"temperature"`
	TopP        float64 `mapstructure:"top_p"        yaml:"top_p"`
	MaxChars    int     `mapstructure:"max_chars"    yaml:"max_chars"`
	TimeoutSec  int     `mapstructure:"timeout_sec"  yaml:"timeout_sec"`
}

// PipelineConfig holds scheduler concurrency and retry settings.
type PipelineConfig struct {
	Workers          int     `mapstructure:"workers"           yaml:"workers"`
	FetchConcurrency int     `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
	ScoreConcurrency int     `mapstructure:"score_concurrency" yaml:"score_concurrency"`
	MaxRetries       int     `mapstructure:"max_retries"       yaml:"max_retries"`
	BaseDelayMs      int     `mapstructure:"base_delay_ms"     yaml:"base_delay_ms"`
	MaxDelayMs       int     `mapstructure:"max_delay_ms"      yaml:"max_delay_ms"`
	Jitter           float64 `mapstructure:"jitter"            yaml:"jitter"` // 0..1 fraction of each delay
}

// CalendarConfig selects the holiday set used to skip non-business days.
type CalendarConfig struct {
	Preset   string   `mapstructure:"preset"   yaml:"preset"` // "nyse", "us_federal", "weekends"
	Holidays []string `mapstructure:"holidays" yaml:"holidays"` // extra YYYY-MM-DD dates
}

// RosterConfig points at an optional roster file.
type RosterConfig struct {
	File    string   `mapstructure:"file"    yaml:"file"`
	Symbols []string `mapstructure:"symbols" yaml:"symbols"`
}

// OutputConfig holds report output settings.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"    yaml:"dir"`
	Charts bool   `mapstructure:"charts" yaml:"charts"`
}

// StatusConfig holds the optional progress server settings.
type StatusConfig struct {
	Addr        string   `mapstructure:"addr"         yaml:"addr"` // empty disables the server
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// WatchConfig holds the daily scheduler settings.
type WatchConfig struct {
	Cron     string `mapstructure:"cron"     yaml:"cron"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.newsentiment/config.yaml (home directory)
//  3. /etc/newsentiment/config.yaml (system)
//
// Environment variables override config file values.
// Format: NEWSENTIMENT_<SECTION>_<KEY>, e.g., NEWSENTIMENT_NEWS_POLYGON_KEY
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".newsentiment"))
	v.AddConfigPath("/etc/newsentiment")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("NEWSENTIMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// News defaults
	v.SetDefault("news.provider", "polygon")
	v.SetDefault("news.polygon_url", "https://api.polygon.io")
	v.SetDefault("news.rss_url", "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US")
	v.SetDefault("news.limit", 100)
	v.SetDefault("news.requests_per_second", 1.0)
	v.SetDefault("news.timeout_sec", 30)
	v.SetDefault("news.cache_ttl", 900) // 15 minutes
	v.SetDefault("news.fetch_bodies", false)

	// Scorer defaults
	v.SetDefault("scorer.provider", "ollama")
	v.SetDefault("scorer.ollama_url", "http://localhost:11434")
	v.SetDefault("scorer.model", "gpt-oss:20b")
	v.SetDefault("scorer.temperature", 0.1)
	v.SetDefault("scorer.top_p", 0.9)
	v.SetDefault("scorer.max_chars", 2000)
	v.SetDefault("scorer.timeout_sec", 60)

	// Pipeline defaults
	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.fetch_concurrency", 2)
	v.SetDefault("pipeline.score_concurrency", 4)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.base_delay_ms", 1000)
	v.SetDefault("pipeline.max_delay_ms", 30000)
	v.SetDefault("pipeline.jitter", 0.2)

	// Calendar defaults
	v.SetDefault("calendar.preset", "nyse")
	v.SetDefault("calendar.holidays", []string{})

	// Output defaults
	v.SetDefault("output.dir", "results")
	v.SetDefault("output.charts", true)

	// Status server defaults (disabled)
	v.SetDefault("status.addr", "")
	v.SetDefault("status.cors_origins", []string{"http://localhost:3000"})

	// Watch defaults: weekdays after the US close
	v.SetDefault("watch.cron", "30 18 * * 1-5")
	v.SetDefault("watch.timezone", "America/New_York")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys and the conventional
// provider variables from the environment.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("POLYGON_API_KEY"); key != "" && cfg.News.PolygonKey == "" {
		cfg.News.PolygonKey = key
	}
	if key := os.Getenv("NEWSENTIMENT_NEWS_POLYGON_KEY"); key != "" {
		cfg.News.PolygonKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && os.Getenv("NEWSENTIMENT_SCORER_OLLAMA_URL") == "" {
		if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
			host = "http://" + host
		}
		cfg.Scorer.OllamaURL = host
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" && os.Getenv("NEWSENTIMENT_SCORER_MODEL") == "" {
		cfg.Scorer.Model = model
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	providers := c.NewsProviders()
	if len(providers) == 0 {
		return fmt.Errorf("config: news.provider is empty")
	}
	for _, p := range providers {
		switch p {
		case "polygon", "rss":
		default:
			return fmt.Errorf("config: unknown news provider %q", p)
		}
	}
	switch c.Scorer.Provider {
	case "ollama", "keyword":
	default:
		return fmt.Errorf("config: unknown scorer provider %q", c.Scorer.Provider)
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.FetchConcurrency < 1 || c.Pipeline.ScoreConcurrency < 1 {
		return fmt.Errorf("config: pipeline concurrency must be positive (workers=%d fetch=%d score=%d)",
			c.Pipeline.Workers, c.Pipeline.FetchConcurrency, c.Pipeline.ScoreConcurrency)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("config: pipeline.max_retries must be >= 0, got %d", c.Pipeline.MaxRetries)
	}
	if c.Pipeline.Jitter < 0 || c.Pipeline.Jitter > 1 {
		return fmt.Errorf("config: pipeline.jitter must be within [0,1], got %g", c.Pipeline.Jitter)
	}
	for _, p := range providers {
		if p == "polygon" && c.News.PolygonKey == "" {
			return fmt.Errorf("config: polygon news provider requires an API key (set POLYGON_API_KEY)")
		}
	}
	return nil
}

// NewsProviders splits news.provider on "+" or ",".
func (c *Config) NewsProviders() []string {
	var out []string
	for _, p := range strings.FieldsFunc(c.News.Provider, func(r rune) bool { return r == '+' || r == ',' }) {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewsTimeout returns the per-call news fetch timeout.
func (c *Config) NewsTimeout() time.Duration {
	return time.Duration(c.News.TimeoutSec) * time.Second
}

// ScorerTimeout returns the per-call scoring timeout.
func (c *Config) ScorerTimeout() time.Duration {
	return time.Duration(c.Scorer.TimeoutSec) * time.Second
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
