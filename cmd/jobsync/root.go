package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/amishk599/jobsync/internal/adapter"
	"github.com/amishk599/jobsync/internal/ai"
	"github.com/amishk599/jobsync/internal/config"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/notifier"
	"github.com/amishk599/jobsync/internal/pipeline"
	"github.com/amishk599/jobsync/internal/ratelimit"
	"github.com/amishk599/jobsync/internal/retry"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobsync",
	Short: "Job posting sync for FINN and NAV",
	Long:  "jobsync pulls job postings from FINN.no and NAV, keeps the relevant ones in SQLite and serves them over an API and a TUI.",
	// Default to `start` so that `jobsync` with no args runs the daemon.
	RunE:         runStart,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBSYNC_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBSYNC_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBSYNC_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// mustLoad is the common prologue of every command: logger, then config.
// A config error is fatal.
func mustLoad() (*config.Config, *slog.Logger) {
	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// setupHTTPClient returns the client shared by both adapters. Every request
// goes through the per-host rate limiter.
func setupHTTPClient(cfg *config.Config) *http.Client {
	limiter := ratelimit.NewHostRateLimiter(cfg.HTTP.RequestDelay)
	return &http.Client{
		Timeout:   cfg.HTTP.Timeout,
		Transport: ratelimit.NewTransport(http.DefaultTransport, limiter),
	}
}

// setupNotifier returns nil for type "none"; the runner skips notification then.
func setupNotifier(cfg *config.Config, httpClient *http.Client, retrier *retry.Retrier, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, retrier, logger)
	case "none":
		return nil
	default:
		return notifier.NewLogNotifier(logger)
	}
}

func setupProvider(cfg *config.Config) (ai.LLMProvider, error) {
	client := &http.Client{Timeout: cfg.AI.Timeout}
	switch cfg.AI.Provider {
	case "anthropic":
		return ai.NewAnthropicProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, client), nil
	case "openai":
		return ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, client), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.AI.Provider)
	}
}

// setupAI returns the relevancy filter and summarizer. Disabled features get
// the accept-all filter and the empty summarizer.
func setupAI(cfg *config.Config, logger *slog.Logger) (pipeline.RelevancyFilter, pipeline.Summarizer, error) {
	var (
		relevancy  pipeline.RelevancyFilter = ai.NopFilter{}
		summarizer pipeline.Summarizer      = ai.NopSummarizer{}
	)
	if !cfg.AI.Enabled() {
		return relevancy, summarizer, nil
	}

	provider, err := setupProvider(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AI.FilterEnabled {
		relevancy = ai.NewRelevancyFilter(provider, ai.RelevancyTemplate, cfg.AI.MaxFilterChars, logger)
	}
	if cfg.AI.SummaryEnabled {
		summarizer = ai.NewSummarizer(provider, ai.SummaryTemplate, cfg.AI.MaxSummaryChars, cfg.AI.MaxSummaryTokens, logger)
	}
	logger.Info("ai enabled",
		"provider", cfg.AI.Provider,
		"model", cfg.AI.Model,
		"filter", cfg.AI.FilterEnabled,
		"summary", cfg.AI.SummaryEnabled,
	)
	return relevancy, summarizer, nil
}

func createFetcher(source model.Source, cfg *config.Config, httpClient *http.Client, retrier *retry.Retrier, logger *slog.Logger) model.Fetcher {
	switch source {
	case model.SourceFINN:
		return adapter.NewFINNAdapter(adapter.FINNConfig{
			BaseURL:       cfg.Sources.FINN.BaseURL,
			Location:      cfg.Sources.FINN.Location,
			LocationNames: cfg.Sources.FINN.LocationNames,
			UserAgent:     cfg.HTTP.UserAgent,
			MaxPages:      cfg.Limits.MaxPagesPerRun,
			MaxItems:      cfg.Limits.MaxItemsPerRun,
			MaxKeywords:   cfg.Limits.MaxKeywords,
		}, httpClient, retrier, logger)
	case model.SourceNAV:
		return adapter.NewNAVAdapter(adapter.NAVConfig{
			BaseURL:   cfg.Sources.NAV.BaseURL,
			TokenURL:  cfg.Sources.NAV.TokenURL,
			Token:     cfg.Sources.NAV.Token,
			Locations: cfg.Sources.NAV.Locations,
			UserAgent: cfg.HTTP.UserAgent,
			MaxPages:  cfg.Limits.MaxPagesPerRun,
			MaxItems:  cfg.Limits.MaxItemsPerRun,
		}, httpClient, retrier, logger)
	}
	return nil
}

func sourceEnabled(cfg *config.Config, source model.Source) bool {
	switch source {
	case model.SourceFINN:
		return cfg.Sources.FINN.Enabled
	case model.SourceNAV:
		return cfg.Sources.NAV.Enabled
	}
	return false
}

// buildRunners wires one pipeline runner per enabled source, all sharing the
// store, the HTTP client and the AI stages.
func buildRunners(cfg *config.Config, st pipeline.Store, logger *slog.Logger) (map[model.Source]*pipeline.Runner, error) {
	httpClient := setupHTTPClient(cfg)
	retrier := retry.New(cfg.HTTP.MaxRetries, cfg.HTTP.RetryBaseDelay, logger)
	n := setupNotifier(cfg, &http.Client{Timeout: cfg.HTTP.Timeout}, retrier, logger)

	relevancy, summarizer, err := setupAI(cfg, logger)
	if err != nil {
		return nil, err
	}

	runners := make(map[model.Source]*pipeline.Runner)
	for _, source := range model.Sources {
		if !sourceEnabled(cfg, source) {
			continue
		}
		fetcher := createFetcher(source, cfg, httpClient, retrier, logger)
		runners[source] = pipeline.NewRunner(source, fetcher, cfg.Keywords, st, relevancy, summarizer, n, logger)
		logger.Info("registered source", "source", string(source))
	}
	return runners, nil
}
