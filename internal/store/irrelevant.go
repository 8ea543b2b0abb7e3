package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amishk599/jobsync/internal/model"
)

// IsIrrelevant reports whether url was previously rejected by the relevancy filter.
func (s *SQLiteStore) IsIrrelevant(ctx context.Context, url string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM irrelevant_urls WHERE url = ?", url).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking irrelevant url %s: %w", url, err)
	}
	return true, nil
}

// AddIrrelevant records url as rejected. Recording an already cached URL is a no-op.
func (s *SQLiteStore) AddIrrelevant(ctx context.Context, u model.IrrelevantURL) error {
	return addIrrelevant(ctx, s.db, u)
}

func addIrrelevant(ctx context.Context, db execer, u model.IrrelevantURL) error {
	_, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO irrelevant_urls (url, reason, recorded_at) VALUES (?, ?, ?)",
		u.URL, nullString(u.Reason), formatTime(u.RecordedAt))
	if err != nil {
		return fmt.Errorf("recording irrelevant url %s: %w", u.URL, err)
	}
	return nil
}

// DeleteIrrelevant removes url from the cache so the next run evaluates it
// again. Returns ErrNotFound if it was not cached.
func (s *SQLiteStore) DeleteIrrelevant(ctx context.Context, url string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM irrelevant_urls WHERE url = ?", url)
	if err != nil {
		return fmt.Errorf("deleting irrelevant url %s: %w", url, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIrrelevant returns cached URLs, most recent first.
func (s *SQLiteStore) ListIrrelevant(ctx context.Context, limit int) ([]model.IrrelevantURL, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT url, reason, recorded_at FROM irrelevant_urls ORDER BY recorded_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing irrelevant urls: %w", err)
	}
	defer rows.Close()

	var out []model.IrrelevantURL
	for rows.Next() {
		var u model.IrrelevantURL
		var reason sql.NullString
		var recorded string
		if err := rows.Scan(&u.URL, &reason, &recorded); err != nil {
			return nil, fmt.Errorf("scanning irrelevant url: %w", err)
		}
		u.Reason = reason.String
		if u.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
