package filter

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Fold normalizes s for case-insensitive comparison. Composed and decomposed
// forms of letters such as "ø" and "å" compare equal after folding.
func Fold(s string) string {
	return folder.String(norm.NFC.String(s))
}

// KeywordMatcher matches postings whose title or description contains any of
// the configured keywords. Matching is case-insensitive substring matching.
type KeywordMatcher struct {
	keywords []string
	folded   []string
}

// NewKeywordMatcher returns a matcher over keywords. Blank keywords are dropped.
func NewKeywordMatcher(keywords []string) *KeywordMatcher {
	m := &KeywordMatcher{}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		m.keywords = append(m.keywords, kw)
		m.folded = append(m.folded, Fold(kw))
	}
	return m
}

// Keywords returns the keywords the matcher was built with, blanks removed.
func (m *KeywordMatcher) Keywords() []string {
	return m.keywords
}

// Match returns the first keyword found in title, then in body.
// An empty keyword list matches nothing.
func (m *KeywordMatcher) Match(title, body string) (string, bool) {
	t := Fold(title)
	for i, kw := range m.folded {
		if strings.Contains(t, kw) {
			return m.keywords[i], true
		}
	}
	if body == "" {
		return "", false
	}
	b := Fold(body)
	for i, kw := range m.folded {
		if strings.Contains(b, kw) {
			return m.keywords[i], true
		}
	}
	return "", false
}

// LocationMatcher checks free text against a list of place names.
// An empty list passes everything.
type LocationMatcher struct {
	names []string
}

// NewLocationMatcher returns a matcher over place names.
func NewLocationMatcher(names []string) *LocationMatcher {
	m := &LocationMatcher{}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			m.names = append(m.names, Fold(n))
		}
	}
	return m
}

// Empty reports whether no place names are configured.
func (m *LocationMatcher) Empty() bool {
	return len(m.names) == 0
}

// Contains reports whether text mentions any configured place name.
func (m *LocationMatcher) Contains(text string) bool {
	if len(m.names) == 0 {
		return true
	}
	t := Fold(text)
	for _, n := range m.names {
		if strings.Contains(t, n) {
			return true
		}
	}
	return false
}

// Equals reports whether value names one of the configured places exactly,
// ignoring case. Names written as "COUNTY.MUNICIPAL" match either part.
func (m *LocationMatcher) Equals(value string) bool {
	if len(m.names) == 0 {
		return true
	}
	v := Fold(strings.TrimSpace(value))
	if v == "" {
		return false
	}
	for _, n := range m.names {
		if n == v {
			return true
		}
		for _, part := range strings.Split(n, ".") {
			if part == v {
				return true
			}
		}
	}
	return false
}
