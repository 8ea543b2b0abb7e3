package model

import "time"

// DateRange restricts listings by first-seen date.
type DateRange string

const (
	DateRangeAll     DateRange = "all"
	DateRange7Days   DateRange = "7days"
	DateRange30Days  DateRange = "30days"
	DateRange3Months DateRange = "3months"
)

// Since returns the lower bound for the range relative to now.
// ok is false for DateRangeAll and unknown values.
func (d DateRange) Since(now time.Time) (time.Time, bool) {
	switch d {
	case DateRange7Days:
		return now.AddDate(0, 0, -7), true
	case DateRange30Days:
		return now.AddDate(0, 0, -30), true
	case DateRange3Months:
		return now.AddDate(0, -3, 0), true
	}
	return time.Time{}, false
}

// Valid reports whether d is a recognized range. Empty means all.
func (d DateRange) Valid() bool {
	switch d {
	case "", DateRangeAll, DateRange7Days, DateRange30Days, DateRange3Months:
		return true
	}
	return false
}

// PostingQuery filters and paginates ListPostings. Nil pointers mean "don't filter".
type PostingQuery struct {
	Source     Source
	Keyword    string
	Search     string
	IsFavorite *bool
	IsHidden   *bool
	Applied    *bool
	Status     Status
	DateRange  DateRange
	Skip       int
	Limit      int
}

// MetadataUpdate carries the user-editable fields of a posting.
// Only non-nil fields are written.
type MetadataUpdate struct {
	IsFavorite *bool   `json:"is_favorite"`
	IsHidden   *bool   `json:"is_hidden"`
	Applied    *bool   `json:"applied"`
	Notes      *string `json:"notes"`
}

// Empty reports whether the update changes nothing.
func (u MetadataUpdate) Empty() bool {
	return u.IsFavorite == nil && u.IsHidden == nil && u.Applied == nil && u.Notes == nil
}

// StatsQuery scopes Statistics.
type StatsQuery struct {
	Source        Source
	IncludeHidden bool
}

// Statistics is the aggregate view served by the stats endpoint.
type Statistics struct {
	TotalJobs    int            `json:"total_jobs"`
	Favorites    int            `json:"favorites"`
	Applied      int            `json:"applied"`
	Sources      map[Source]int `json:"sources"`
	Status       map[Status]int `json:"status"`
	NewLast7Days int            `json:"new_last_7_days"`
}

// SweepCriteria selects ACTIVE postings that should become INACTIVE.
type SweepCriteria struct {
	Now            time.Time
	StaleThreshold time.Duration // not observed within this window
	MaxAge         time.Duration // first seen longer ago than this; zero disables
}

// RunBatch is every write produced by one pipeline run, committed atomically.
type RunBatch struct {
	Source     Source
	RunAt      time.Time
	Postings   []Posting
	Irrelevant []IrrelevantURL
	Observed   []string // already stored URLs seen again this run
	Withdrawn  []string // URLs to move ACTIVE -> EXPIRED
	SyncState  *SyncState
}

// CommitResult reports what CommitRun actually changed.
type CommitResult struct {
	Inserted   []Posting // with store-assigned IDs
	Duplicates int       // postings that lost an insert race
	Expired    int
}
