package adapter

import (
	"html"
	"regexp"
	"strings"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// extractText converts an HTML or HTML-encoded string to plain text.
// It first unescapes HTML entities (handles double-encoded feed content;
// no-op on already-real HTML), strips all tags, then collapses whitespace.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, " ")
	return collapse(plain)
}

// collapse trims s and folds runs of whitespace into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// limitKeywords returns at most n keywords. n <= 0 means all.
func limitKeywords(keywords []string, n int) []string {
	if n <= 0 || len(keywords) <= n {
		return keywords
	}
	return keywords[:n]
}
