package ai

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"text/template"
)

const (
	DefaultMaxSummaryChars  = 3000
	DefaultMaxSummaryTokens = 300
)

// Summarizer produces a short Norwegian summary of a posting description.
type Summarizer struct {
	provider  LLMProvider
	tmpl      *template.Template
	maxChars  int
	maxTokens int
	logger    *slog.Logger
}

// NewSummarizer creates a summarizer. Zero limits use the defaults.
func NewSummarizer(provider LLMProvider, tmpl *template.Template, maxChars, maxTokens int, logger *slog.Logger) *Summarizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxSummaryChars
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxSummaryTokens
	}
	return &Summarizer{
		provider:  provider,
		tmpl:      tmpl,
		maxChars:  maxChars,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Summarize returns the summary, or "" when there is nothing to summarize or
// the provider fails.
func (s *Summarizer) Summarize(ctx context.Context, title, description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return ""
	}

	var prompt bytes.Buffer
	if err := s.tmpl.Execute(&prompt, promptData{
		Title:       title,
		Description: truncateRunes(description, s.maxChars),
	}); err != nil {
		s.logger.Error("summary prompt render failed", "error", err)
		return ""
	}

	summary, err := s.provider.Complete(ctx, prompt.String(), s.maxTokens)
	if err != nil {
		s.logger.Warn("summary failed", "title", title, "error", err)
		return ""
	}
	return strings.TrimSpace(summary)
}
