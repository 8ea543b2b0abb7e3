package store

import (
	"context"

	"github.com/amishk599/jobsync/internal/model"
)

// NopStore is a no-op store used in dry-run mode. It knows no postings and
// persists nothing, so every fetched posting appears new on each run.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) HasPosting(context.Context, string) (bool, error)   { return false, nil }
func (s *NopStore) IsIrrelevant(context.Context, string) (bool, error) { return false, nil }

func (s *NopStore) SyncState(_ context.Context, source model.Source) (model.SyncState, bool, error) {
	return model.SyncState{Source: source}, false, nil
}

// CommitRun reports every posting as inserted without writing anything.
func (s *NopStore) CommitRun(_ context.Context, b model.RunBatch) (model.CommitResult, error) {
	return model.CommitResult{Inserted: b.Postings}, nil
}
