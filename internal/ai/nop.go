package ai

import (
	"context"

	"github.com/amishk599/jobsync/internal/model"
)

// NopFilter accepts every posting without an LLM call. Used when
// ai.filter_enabled is false or no API key is configured.
type NopFilter struct{}

// Evaluate accepts p.
func (NopFilter) Evaluate(_ context.Context, _ model.Posting) model.Decision {
	return model.Decision{Accepted: true, Reason: "filter disabled"}
}

// NopSummarizer never summarizes. Used when ai.summary_enabled is false.
type NopSummarizer struct{}

// Summarize returns "".
func (NopSummarizer) Summarize(_ context.Context, _, _ string) string {
	return ""
}
