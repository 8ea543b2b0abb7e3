package pipeline

import (
	"context"

	"github.com/amishk599/jobsync/internal/model"
)

// Store is the persistence a Runner needs. *store.SQLiteStore and
// *store.NopStore implement it.
type Store interface {
	HasPosting(ctx context.Context, url string) (bool, error)
	IsIrrelevant(ctx context.Context, url string) (bool, error)
	SyncState(ctx context.Context, source model.Source) (model.SyncState, bool, error)
	CommitRun(ctx context.Context, b model.RunBatch) (model.CommitResult, error)
}

// RelevancyFilter decides whether a new posting is kept.
// Implementations fail open and never return an error.
type RelevancyFilter interface {
	Evaluate(ctx context.Context, p model.Posting) model.Decision
}

// Summarizer produces a short summary, or "" when none is available.
type Summarizer interface {
	Summarize(ctx context.Context, title, description string) string
}
