package ai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/amishk599/jobsync/internal/model"
)

const (
	DefaultMaxFilterChars = 1500
	filterMaxTokens       = 100
	acceptToken           = "JA"
)

// RelevancyFilter asks an LLM whether a posting is worth keeping.
// It fails open: a posting is accepted whenever the question cannot be asked
// or answered.
type RelevancyFilter struct {
	provider LLMProvider
	tmpl     *template.Template
	maxChars int
	logger   *slog.Logger
}

// NewRelevancyFilter creates a filter. maxChars bounds how much of the
// description is sent; zero uses DefaultMaxFilterChars.
func NewRelevancyFilter(provider LLMProvider, tmpl *template.Template, maxChars int, logger *slog.Logger) *RelevancyFilter {
	if maxChars <= 0 {
		maxChars = DefaultMaxFilterChars
	}
	return &RelevancyFilter{
		provider: provider,
		tmpl:     tmpl,
		maxChars: maxChars,
		logger:   logger,
	}
}

// Evaluate returns the verdict for p. It never returns an error.
func (f *RelevancyFilter) Evaluate(ctx context.Context, p model.Posting) model.Decision {
	if strings.TrimSpace(p.Description) == "" {
		return model.Decision{Accepted: true, Reason: "filter disabled"}
	}

	var prompt bytes.Buffer
	if err := f.tmpl.Execute(&prompt, promptData{
		Title:       p.Title,
		Company:     p.Company,
		Keywords:    p.MatchedKeyword,
		Description: truncateRunes(p.Description, f.maxChars),
	}); err != nil {
		f.logger.Error("relevancy prompt render failed", "url", p.URL, "error", err)
		return model.Decision{Accepted: true, Reason: fmt.Sprintf("render prompt: %v", err)}
	}

	resp, err := f.provider.Complete(ctx, prompt.String(), filterMaxTokens)
	if err != nil {
		f.logger.Warn("relevancy check failed, accepting", "url", p.URL, "error", err)
		return model.Decision{Accepted: true, Reason: fmt.Sprintf("error: %v", err)}
	}

	resp = strings.TrimSpace(resp)
	accepted := strings.HasPrefix(strings.ToUpper(resp), acceptToken)
	f.logger.Debug("relevancy verdict", "title", p.Title, "accepted", accepted)
	return model.Decision{Accepted: accepted, Reason: resp}
}

// truncateRunes caps s at n runes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
