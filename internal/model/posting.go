package model

import (
	"context"
	"strings"
	"time"
)

// Source identifies the upstream a posting was ingested from.
type Source string

const (
	SourceFINN Source = "FINN"
	SourceNAV  Source = "NAV"
)

// Sources lists every supported upstream in a stable order.
var Sources = []Source{SourceFINN, SourceNAV}

// ParseSource maps a case-insensitive name ("finn", "NAV") to a Source.
func ParseSource(s string) (Source, bool) {
	for _, src := range Sources {
		if strings.EqualFold(string(src), s) {
			return src, true
		}
	}
	return "", false
}

// Status is the lifecycle state of a stored posting.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusExpired  Status = "EXPIRED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusExpired:
		return true
	}
	return false
}

// Posting is the normalized representation of a job listing from any source.
// URL is the identity key across sources.
type Posting struct {
	ID             int64      `json:"id"`
	URL            string     `json:"url"`
	Source         Source     `json:"source"`
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	Location       string     `json:"location,omitempty"`
	MatchedKeyword string     `json:"matched_keyword,omitempty"`
	Deadline       string     `json:"deadline,omitempty"` // free text as published upstream
	EmploymentType string     `json:"employment_type,omitempty"`
	PublishedAt    string     `json:"published_at,omitempty"` // free text as published upstream
	Description    string     `json:"description,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	ExternalID     string     `json:"external_id,omitempty"`
	Status         Status     `json:"status"`
	FirstSeenAt    time.Time  `json:"first_seen_at"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
	ExpireAt       *time.Time `json:"expire_at,omitempty"`

	// User interaction fields. Only the CRUD surface writes these.
	IsHidden   bool       `json:"is_hidden"`
	IsFavorite bool       `json:"is_favorite"`
	Applied    bool       `json:"applied"`
	AppliedAt  *time.Time `json:"applied_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// IrrelevantURL is a URL the relevancy filter rejected.
type IrrelevantURL struct {
	URL        string    `json:"url"`
	Reason     string    `json:"reason,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SyncState is the per-source incremental fetch bookmark.
type SyncState struct {
	Source             Source    `json:"source"`
	LastSyncAt         time.Time `json:"last_sync_at"`
	ContinuationToken  string    `json:"continuation_token,omitempty"`
	JobsAddedLastRun   int       `json:"jobs_added_last_run"`
	JobsRemovedLastRun int       `json:"jobs_removed_last_run"`
}

// Decision is the outcome of a relevancy evaluation.
type Decision struct {
	Accepted bool
	Reason   string
}

// InsertResult tells whether an insert created a row or hit an existing URL.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyExists
)

func (r InsertResult) String() string {
	if r == Inserted {
		return "inserted"
	}
	return "already_exists"
}

// FetchRequest is what the orchestrator hands a source adapter for one run.
type FetchRequest struct {
	Cursor   string   // continuation token from the previous run, "" on first run
	Keywords []string // a candidate is kept only if one of these matches

	// Known reports URLs that are already stored or known to be irrelevant.
	// Adapters skip the detail request for them. May be nil.
	Known func(url string) bool
}

// FetchResult is what a source adapter returns for one run.
type FetchResult struct {
	Postings    []Posting
	Withdrawn   []string // URLs the upstream reports as no longer active
	Cursor      string
	NotModified bool // upstream state unchanged since Cursor; Cursor is echoed back
	ItemErrors  int  // per-item failures that were skipped
}

// Fetcher fetches new or changed postings from one upstream.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// Notifier sends notifications for newly added postings.
type Notifier interface {
	Notify(postings []Posting) error
}
