package store

import (
	"context"
	"fmt"

	"github.com/amishk599/jobsync/internal/model"
)

// CommitRun applies every write of one pipeline run in a single transaction:
// new postings, rejected URLs, re-observations, withdrawals and the sync
// state. Either all of it lands or none of it does.
//
// The run counters of b.SyncState are overwritten with what the transaction
// actually changed, so postings lost to a concurrent writer are not counted
// as added.
func (s *SQLiteStore) CommitRun(ctx context.Context, b model.RunBatch) (model.CommitResult, error) {
	var result model.CommitResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin run transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range b.Postings {
		res, id, err := insertPosting(ctx, tx, p)
		if err != nil {
			return model.CommitResult{}, err
		}
		if res == model.AlreadyExists {
			result.Duplicates++
			continue
		}
		p.ID = id
		result.Inserted = append(result.Inserted, p)
	}

	for _, u := range b.Irrelevant {
		if err := addIrrelevant(ctx, tx, u); err != nil {
			return model.CommitResult{}, err
		}
	}

	runAt := formatTime(b.RunAt)
	for _, url := range b.Observed {
		if _, err := tx.ExecContext(ctx, "UPDATE postings SET last_checked_at = ? WHERE url = ?", runAt, url); err != nil {
			return model.CommitResult{}, fmt.Errorf("touching posting %s: %w", url, err)
		}
	}

	for _, url := range b.Withdrawn {
		res, err := tx.ExecContext(ctx,
			"UPDATE postings SET status = ?, last_checked_at = ? WHERE url = ? AND status = ?",
			string(model.StatusExpired), runAt, url, string(model.StatusActive))
		if err != nil {
			return model.CommitResult{}, fmt.Errorf("expiring posting %s: %w", url, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			result.Expired += int(n)
		}
	}

	if b.SyncState != nil {
		st := *b.SyncState
		st.JobsAddedLastRun = len(result.Inserted)
		st.JobsRemovedLastRun = result.Expired
		if err := saveSyncState(ctx, tx, st); err != nil {
			return model.CommitResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return model.CommitResult{}, fmt.Errorf("commit run transaction: %w", err)
	}
	return result, nil
}
