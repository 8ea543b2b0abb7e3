package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		title    string
		body     string
		wantKW   string
		wantOK   bool
	}{
		{
			name:     "title match",
			keywords: []string{"python", "sql"},
			title:    "Senior Python-utvikler",
			wantKW:   "python",
			wantOK:   true,
		},
		{
			name:     "description match when title misses",
			keywords: []string{"power bi"},
			title:    "Analytiker",
			body:     "Du har erfaring med Power BI og DAX.",
			wantKW:   "power bi",
			wantOK:   true,
		},
		{
			name:     "title wins over description",
			keywords: []string{"sql", "data engineer"},
			title:    "Data Engineer",
			body:     "SQL daily",
			wantKW:   "sql",
			wantOK:   true,
		},
		{
			name:     "norwegian letters fold",
			keywords: []string{"RÅDGIVER"},
			title:    "Seniorrådgiver analyse",
			wantKW:   "RÅDGIVER",
			wantOK:   true,
		},
		{
			name:     "decomposed form matches composed keyword",
			keywords: []string{"rådgiver"},
			title:    "rådgiver",
			wantKW:   "rådgiver",
			wantOK:   true,
		},
		{
			name:     "no match",
			keywords: []string{"devops"},
			title:    "Frontend Engineer",
			body:     "React",
		},
		{
			name:     "empty keyword list matches nothing",
			keywords: []string{" ", ""},
			title:    "Anything",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kw, ok := NewKeywordMatcher(tt.keywords).Match(tt.title, tt.body)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKW, kw)
		})
	}
}

func TestLocationMatcher_Contains(t *testing.T) {
	m := NewLocationMatcher([]string{"Bergen", "Askøy"})

	assert.True(t, m.Contains("Equinor, BERGEN"))
	assert.True(t, m.Contains("Kleppestø, Askøy"))
	assert.False(t, m.Contains("Oslo"))
	assert.True(t, NewLocationMatcher(nil).Contains("Oslo"), "empty list passes all")
}

func TestLocationMatcher_Equals(t *testing.T) {
	m := NewLocationMatcher([]string{"VESTLAND.BERGEN"})

	assert.True(t, m.Equals("BERGEN"))
	assert.True(t, m.Equals("vestland"))
	assert.True(t, m.Equals("Vestland.Bergen"))
	assert.False(t, m.Equals("OSLO"))
	assert.False(t, m.Equals(""))
}
