package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amishk599/jobsync/internal/model"
)

// SyncState returns the bookmark for source. ok is false before the first
// successful run.
func (s *SQLiteStore) SyncState(ctx context.Context, source model.Source) (model.SyncState, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT source, last_sync_at, continuation_token,
		jobs_added_last_run, jobs_removed_last_run FROM sync_state WHERE source = ?`, string(source))
	st, err := scanSyncState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncState{Source: source}, false, nil
	}
	if err != nil {
		return model.SyncState{}, false, fmt.Errorf("reading sync state for %s: %w", source, err)
	}
	return st, true, nil
}

// SyncStates returns the bookmark of every source that has completed a run.
func (s *SQLiteStore) SyncStates(ctx context.Context) ([]model.SyncState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, last_sync_at, continuation_token,
		jobs_added_last_run, jobs_removed_last_run FROM sync_state ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("listing sync state: %w", err)
	}
	defer rows.Close()

	var out []model.SyncState
	for rows.Next() {
		st, err := scanSyncState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sync state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveSyncState upserts the bookmark for st.Source.
func (s *SQLiteStore) SaveSyncState(ctx context.Context, st model.SyncState) error {
	return saveSyncState(ctx, s.db, st)
}

func saveSyncState(ctx context.Context, db execer, st model.SyncState) error {
	_, err := db.ExecContext(ctx, `INSERT INTO sync_state
		(source, last_sync_at, continuation_token, jobs_added_last_run, jobs_removed_last_run)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			continuation_token = excluded.continuation_token,
			jobs_added_last_run = excluded.jobs_added_last_run,
			jobs_removed_last_run = excluded.jobs_removed_last_run`,
		string(st.Source), formatTime(st.LastSyncAt), nullString(st.ContinuationToken),
		st.JobsAddedLastRun, st.JobsRemovedLastRun)
	if err != nil {
		return fmt.Errorf("saving sync state for %s: %w", st.Source, err)
	}
	return nil
}

func scanSyncState(row rowScanner) (model.SyncState, error) {
	var st model.SyncState
	var last string
	var token sql.NullString
	if err := row.Scan(&st.Source, &last, &token, &st.JobsAddedLastRun, &st.JobsRemovedLastRun); err != nil {
		return model.SyncState{}, err
	}
	t, err := parseTime(last)
	if err != nil {
		return model.SyncState{}, err
	}
	st.LastSyncAt = t
	st.ContinuationToken = token.String
	return st, nil
}
