package ai

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/relevancy.md
var relevancyPromptRaw string

//go:embed prompts/summary.md
var summaryPromptRaw string

// RelevancyTemplate and SummaryTemplate are parsed once at package init and
// reused on every call.
var (
	RelevancyTemplate = template.Must(template.New("relevancy").Parse(relevancyPromptRaw))
	SummaryTemplate   = template.Must(template.New("summary").Parse(summaryPromptRaw))
)

// promptData is the data every prompt template is rendered with.
type promptData struct {
	Title       string
	Company     string
	Keywords    string
	Description string
}
