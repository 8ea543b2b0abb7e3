package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // schedule.timezone must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for jobsync.
type Config struct {
	Database     DatabaseConfig
	Keywords     []string
	Limits       LimitsConfig
	HTTP         HTTPConfig
	Sources      SourcesConfig
	AI           AIConfig
	Schedule     ScheduleConfig
	Expiry       ExpiryConfig
	Server       ServerConfig
	Notification NotificationConfig
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LimitsConfig caps the work a single run may do.
type LimitsConfig struct {
	MaxPagesPerRun int `yaml:"max_pages_per_run"`
	MaxItemsPerRun int `yaml:"max_items_per_run"`
	MaxKeywords    int `yaml:"max_keywords"` // 0 searches every keyword
}

// HTTPConfig controls the shared upstream client.
type HTTPConfig struct {
	Timeout        time.Duration // per request
	RequestDelay   time.Duration // minimum gap between requests to the same host
	UserAgent      string
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// SourcesConfig holds per-source settings.
type SourcesConfig struct {
	FINN FINNConfig `yaml:"finn"`
	NAV  NAVConfig  `yaml:"nav"`
}

type FINNConfig struct {
	Enabled       bool     `yaml:"enabled"`
	BaseURL       string   `yaml:"base_url"`
	Location      string   `yaml:"location"`       // FINN location code
	LocationNames []string `yaml:"location_names"` // place names accepted on result cards
}

type NAVConfig struct {
	Enabled   bool     `yaml:"enabled"`
	BaseURL   string   `yaml:"base_url"`
	TokenURL  string   `yaml:"token_url"`
	Token     string   `yaml:"token"`     // expanded from env var by Load
	Locations []string `yaml:"locations"` // municipal or county names
}

// AIConfig controls the optional relevancy filter and summarizer.
type AIConfig struct {
	Provider         string // "anthropic" or "openai"
	BaseURL          string
	Model            string
	APIKey           string // expanded from env var by Load
	Timeout          time.Duration
	FilterEnabled    bool
	SummaryEnabled   bool
	MaxFilterChars   int
	MaxSummaryChars  int
	MaxSummaryTokens int
}

// Enabled reports whether any AI feature needs a provider.
func (a AIConfig) Enabled() bool {
	return a.FilterEnabled || a.SummaryEnabled
}

// ScheduleConfig holds cron specs for the scheduled jobs.
type ScheduleConfig struct {
	FINN     string `yaml:"finn"`
	NAV      string `yaml:"nav"`
	Sweep    string `yaml:"sweep"`
	Timezone string `yaml:"timezone"`
}

// ExpiryConfig controls the sweeper.
type ExpiryConfig struct {
	StaleThreshold time.Duration
	MaxAge         time.Duration
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log", "slack" or "none"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultAnthropicModel   = "claude-3-haiku-20240307"
	defaultUserAgent        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DefaultKeywords is used when neither the file nor KEYWORDS names any.
var DefaultKeywords = []string{
	"python", "r programming", "sql", "scala", "java",
	"machine learning", "deep learning", "data scientist", "data science",
	"data analyst", "data engineer", "ml engineer", "mlops",
	"statistiker", "statistics", "statistical analysis",
	"pandas", "numpy", "scikit-learn", "tensorflow", "pytorch",
	"keras", "spark", "pyspark", "airflow", "dbt",
	"azure", "aws", "gcp", "google cloud", "docker", "kubernetes",
	"tableau", "power bi", "data visualization",
	"natural language processing", "computer vision",
	"big data", "data engineering", "analytics", "business intelligence",
}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Database     DatabaseConfig     `yaml:"database"`
	Keywords     []string           `yaml:"keywords"`
	Limits       LimitsConfig       `yaml:"limits"`
	HTTP         rawHTTPConfig      `yaml:"http"`
	Sources      SourcesConfig      `yaml:"sources"`
	AI           rawAIConfig        `yaml:"ai"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Expiry       rawExpiryConfig    `yaml:"expiry"`
	Server       rawServerConfig    `yaml:"server"`
	Notification NotificationConfig `yaml:"notification"`
}

type rawHTTPConfig struct {
	Timeout        string `yaml:"timeout"`
	RequestDelay   string `yaml:"request_delay"`
	UserAgent      string `yaml:"user_agent"`
	MaxRetries     *int   `yaml:"max_retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
}

type rawAIConfig struct {
	Provider         string `yaml:"provider"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	APIKey           string `yaml:"api_key"`
	Timeout          string `yaml:"timeout"`
	FilterEnabled    bool   `yaml:"filter_enabled"`
	SummaryEnabled   bool   `yaml:"summary_enabled"`
	MaxFilterChars   int    `yaml:"max_filter_chars"`
	MaxSummaryChars  int    `yaml:"max_summary_chars"`
	MaxSummaryTokens int    `yaml:"max_summary_tokens"`
}

type rawExpiryConfig struct {
	StaleThreshold string `yaml:"stale_threshold"`
	MaxAge         string `yaml:"max_age"`
}

type rawServerConfig struct {
	Addr           string   `yaml:"addr"`
	CORSOrigins    []string `yaml:"cors_origins"`
	RequestTimeout string   `yaml:"request_timeout"`
}

// Load reads .env (if present), then the YAML config file at path, applies
// defaults, validates it, and returns Config.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		Database:     raw.Database,
		Keywords:     raw.Keywords,
		Limits:       raw.Limits,
		Sources:      raw.Sources,
		Schedule:     raw.Schedule,
		Notification: raw.Notification,
	}

	if env := os.Getenv("KEYWORDS"); env != "" {
		cfg.Keywords = splitList(env)
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultKeywords
	}

	if cfg.HTTP.Timeout, err = duration("http.timeout", raw.HTTP.Timeout, 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTP.RequestDelay, err = duration("http.request_delay", raw.HTTP.RequestDelay, time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTP.RetryBaseDelay, err = duration("http.retry_base_delay", raw.HTTP.RetryBaseDelay, 2*time.Second); err != nil {
		return nil, err
	}
	cfg.HTTP.MaxRetries = 3
	if raw.HTTP.MaxRetries != nil {
		cfg.HTTP.MaxRetries = *raw.HTTP.MaxRetries
	}
	cfg.HTTP.UserAgent = orDefault(raw.HTTP.UserAgent, defaultUserAgent)

	cfg.AI = AIConfig{
		Provider:         strings.ToLower(orDefault(raw.AI.Provider, "anthropic")),
		BaseURL:          raw.AI.BaseURL,
		Model:            raw.AI.Model,
		APIKey:           raw.AI.APIKey,
		FilterEnabled:    raw.AI.FilterEnabled,
		SummaryEnabled:   raw.AI.SummaryEnabled,
		MaxFilterChars:   orDefaultInt(raw.AI.MaxFilterChars, 1500),
		MaxSummaryChars:  orDefaultInt(raw.AI.MaxSummaryChars, 3000),
		MaxSummaryTokens: orDefaultInt(raw.AI.MaxSummaryTokens, 300),
	}
	if cfg.AI.Timeout, err = duration("ai.timeout", raw.AI.Timeout, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.AI.BaseURL == "" {
		switch cfg.AI.Provider {
		case "anthropic":
			cfg.AI.BaseURL = defaultAnthropicBaseURL
		case "openai":
			cfg.AI.BaseURL = defaultOpenAIBaseURL
		}
	}
	if cfg.AI.Model == "" && cfg.AI.Provider == "anthropic" {
		cfg.AI.Model = defaultAnthropicModel
	}

	if cfg.Expiry.StaleThreshold, err = duration("expiry.stale_threshold", raw.Expiry.StaleThreshold, 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Expiry.MaxAge, err = duration("expiry.max_age", raw.Expiry.MaxAge, 180*24*time.Hour); err != nil {
		return nil, err
	}

	cfg.Server = ServerConfig{
		Addr:        orDefault(raw.Server.Addr, ":8080"),
		CORSOrigins: raw.Server.CORSOrigins,
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if cfg.Server.RequestTimeout, err = duration("server.request_timeout", raw.Server.RequestTimeout, 15*time.Second); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "jobsync.db"
	}
	if cfg.Limits.MaxPagesPerRun == 0 {
		cfg.Limits.MaxPagesPerRun = 10
	}
	if cfg.Limits.MaxItemsPerRun == 0 {
		cfg.Limits.MaxItemsPerRun = 500
	}
	if cfg.Sources.FINN.Location == "" {
		cfg.Sources.FINN.Location = "2.20001.22046.20220" // Bergen
	}
	if len(cfg.Sources.FINN.LocationNames) == 0 {
		cfg.Sources.FINN.LocationNames = []string{"Bergen"}
	}
	if len(cfg.Sources.NAV.Locations) == 0 {
		cfg.Sources.NAV.Locations = []string{"VESTLAND.BERGEN"}
	}
	if cfg.Schedule.FINN == "" {
		cfg.Schedule.FINN = "0 8,18 * * *"
	}
	if cfg.Schedule.NAV == "" {
		cfg.Schedule.NAV = "0 9,19 * * *"
	}
	if cfg.Schedule.Sweep == "" {
		cfg.Schedule.Sweep = "0 3 * * *"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "Europe/Oslo"
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}
}

func validate(cfg *Config) error {
	if !cfg.Sources.FINN.Enabled && !cfg.Sources.NAV.Enabled {
		return fmt.Errorf("at least one source must be enabled")
	}
	if cfg.Limits.MaxPagesPerRun < 0 || cfg.Limits.MaxItemsPerRun < 0 || cfg.Limits.MaxKeywords < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if cfg.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must not be negative, got %d", cfg.HTTP.MaxRetries)
	}
	if cfg.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %v", cfg.HTTP.Timeout)
	}
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q: %w", cfg.Schedule.Timezone, err)
	}

	switch cfg.Notification.Type {
	case "log", "none":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be log, slack or none, got %q", cfg.Notification.Type)
	}

	if cfg.AI.Enabled() {
		if cfg.AI.Provider != "anthropic" && cfg.AI.Provider != "openai" {
			return fmt.Errorf("ai.provider must be anthropic or openai, got %q", cfg.AI.Provider)
		}
		if cfg.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required when an AI feature is enabled")
		}
		if cfg.AI.Model == "" {
			return fmt.Errorf("ai.model is required when an AI feature is enabled")
		}
	}

	return nil
}

// Location returns the scheduler time zone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func duration(key, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, d)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
