package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

const postingColumns = `id, url, source, title, company, location, matched_keyword, deadline,
	employment_type, published_at, description, summary, external_id, status,
	first_seen_at, last_checked_at, expire_at, is_hidden, is_favorite, applied, applied_at, notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(row rowScanner) (model.Posting, error) {
	var p model.Posting
	var location, keyword, deadline, empType, published sql.NullString
	var description, summary, externalID, notes sql.NullString
	var lastChecked, expireAt, appliedAt sql.NullString
	var firstSeen string
	var hidden, favorite, applied int
	err := row.Scan(&p.ID, &p.URL, &p.Source, &p.Title, &p.Company, &location, &keyword, &deadline,
		&empType, &published, &description, &summary, &externalID, &p.Status,
		&firstSeen, &lastChecked, &expireAt, &hidden, &favorite, &applied, &appliedAt, &notes)
	if err != nil {
		return model.Posting{}, err
	}

	p.Location = location.String
	p.MatchedKeyword = keyword.String
	p.Deadline = deadline.String
	p.EmploymentType = empType.String
	p.PublishedAt = published.String
	p.Description = description.String
	p.Summary = summary.String
	p.ExternalID = externalID.String
	p.Notes = notes.String
	p.IsHidden = hidden != 0
	p.IsFavorite = favorite != 0
	p.Applied = applied != 0

	if p.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return model.Posting{}, err
	}
	if p.LastCheckedAt, err = parseNullTime(lastChecked); err != nil {
		return model.Posting{}, err
	}
	if p.ExpireAt, err = parseNullTime(expireAt); err != nil {
		return model.Posting{}, err
	}
	if p.AppliedAt, err = parseNullTime(appliedAt); err != nil {
		return model.Posting{}, err
	}
	return p, nil
}

// HasPosting reports whether a posting with this URL is stored.
func (s *SQLiteStore) HasPosting(ctx context.Context, url string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM postings WHERE url = ?", url).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking posting %s: %w", url, err)
	}
	return true, nil
}

// InsertIfAbsent stores p unless its URL is already present. The unique
// constraint on url decides races between concurrent writers.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, p model.Posting) (model.InsertResult, int64, error) {
	return insertPosting(ctx, s.db, p)
}

func insertPosting(ctx context.Context, db execer, p model.Posting) (model.InsertResult, int64, error) {
	if p.Status == "" {
		p.Status = model.StatusActive
	}
	res, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO postings (
		url, source, title, company, location, matched_keyword, deadline, employment_type,
		published_at, description, summary, external_id, status, first_seen_at, last_checked_at,
		expire_at, is_hidden, is_favorite, applied, applied_at, notes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.URL, string(p.Source), p.Title, p.Company, nullString(p.Location), nullString(p.MatchedKeyword),
		nullString(p.Deadline), nullString(p.EmploymentType), nullString(p.PublishedAt),
		nullString(p.Description), nullString(p.Summary), nullString(p.ExternalID), string(p.Status),
		formatTime(p.FirstSeenAt), nullTime(p.LastCheckedAt), nullTime(p.ExpireAt),
		boolInt(p.IsHidden), boolInt(p.IsFavorite), boolInt(p.Applied), nullTime(p.AppliedAt), nullString(p.Notes),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("inserting posting %s: %w", p.URL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("inserting posting %s: %w", p.URL, err)
	}
	if n == 0 {
		return model.AlreadyExists, 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("inserting posting %s: %w", p.URL, err)
	}
	return model.Inserted, id, nil
}

// GetPosting returns the posting with the given id, or ErrNotFound.
func (s *SQLiteStore) GetPosting(ctx context.Context, id int64) (model.Posting, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postingColumns+" FROM postings WHERE id = ?", id)
	p, err := scanPosting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Posting{}, ErrNotFound
	}
	if err != nil {
		return model.Posting{}, fmt.Errorf("getting posting %d: %w", id, err)
	}
	return p, nil
}

// GetPostingByURL returns the posting with the given URL, or ErrNotFound.
func (s *SQLiteStore) GetPostingByURL(ctx context.Context, url string) (model.Posting, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postingColumns+" FROM postings WHERE url = ?", url)
	p, err := scanPosting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Posting{}, ErrNotFound
	}
	if err != nil {
		return model.Posting{}, fmt.Errorf("getting posting %s: %w", url, err)
	}
	return p, nil
}

// likePattern wraps s for a substring LIKE match with '\' as the escape.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func postingFilter(q model.PostingQuery, now time.Time) (string, []any) {
	var where []string
	var args []any

	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(q.Source))
	}
	if q.Keyword != "" {
		where = append(where, `matched_keyword LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q.Keyword))
	}
	if q.Search != "" {
		pat := likePattern(q.Search)
		where = append(where, `(title LIKE ? ESCAPE '\' OR company LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR summary LIKE ? ESCAPE '\')`)
		args = append(args, pat, pat, pat, pat)
	}
	if q.IsFavorite != nil {
		where = append(where, "is_favorite = ?")
		args = append(args, boolInt(*q.IsFavorite))
	}
	if q.IsHidden != nil {
		where = append(where, "is_hidden = ?")
		args = append(args, boolInt(*q.IsHidden))
	}
	if q.Applied != nil {
		where = append(where, "applied = ?")
		args = append(args, boolInt(*q.Applied))
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if since, ok := q.DateRange.Since(now); ok {
		where = append(where, "first_seen_at >= ?")
		args = append(args, formatTime(since))
	}

	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// ListPostings returns one page of postings matching q, newest first, and the
// total number of matches.
func (s *SQLiteStore) ListPostings(ctx context.Context, q model.PostingQuery) ([]model.Posting, int, error) {
	where, args := postingFilter(q, s.now())

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM postings"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting postings: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	skip := q.Skip
	if skip < 0 {
		skip = 0
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postingColumns+" FROM postings"+where+" ORDER BY first_seen_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing postings: %w", err)
	}
	defer rows.Close()

	var postings []model.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning posting: %w", err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing postings: %w", err)
	}
	return postings, total, nil
}

// UpdateMetadata writes the user-interaction fields set in u and returns the
// updated posting. Setting applied to true stamps applied_at unless it is
// already set; setting it to false clears applied_at.
func (s *SQLiteStore) UpdateMetadata(ctx context.Context, id int64, u model.MetadataUpdate) (model.Posting, error) {
	var set []string
	var args []any

	if u.IsFavorite != nil {
		set = append(set, "is_favorite = ?")
		args = append(args, boolInt(*u.IsFavorite))
	}
	if u.IsHidden != nil {
		set = append(set, "is_hidden = ?")
		args = append(args, boolInt(*u.IsHidden))
	}
	if u.Applied != nil {
		if *u.Applied {
			set = append(set, "applied = 1", "applied_at = COALESCE(applied_at, ?)")
			args = append(args, formatTime(s.now()))
		} else {
			set = append(set, "applied = 0", "applied_at = NULL")
		}
	}
	if u.Notes != nil {
		set = append(set, "notes = ?")
		args = append(args, nullString(*u.Notes))
	}

	if len(set) > 0 {
		res, err := s.db.ExecContext(ctx, "UPDATE postings SET "+strings.Join(set, ", ")+" WHERE id = ?", append(args, id)...)
		if err != nil {
			return model.Posting{}, fmt.Errorf("updating posting %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return model.Posting{}, ErrNotFound
		}
	}
	return s.GetPosting(ctx, id)
}

// HidePosting soft-deletes a posting.
func (s *SQLiteStore) HidePosting(ctx context.Context, id int64) error {
	hidden := true
	_, err := s.UpdateMetadata(ctx, id, model.MetadataUpdate{IsHidden: &hidden})
	return err
}

// Statistics aggregates postings, excluding hidden ones unless asked.
func (s *SQLiteStore) Statistics(ctx context.Context, q model.StatsQuery) (model.Statistics, error) {
	var where []string
	var args []any
	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(q.Source))
	}
	if !q.IncludeHidden {
		where = append(where, "is_hidden = 0")
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	stats := model.Statistics{
		Sources: map[model.Source]int{model.SourceFINN: 0, model.SourceNAV: 0},
		Status:  map[model.Status]int{model.StatusActive: 0, model.StatusInactive: 0, model.StatusExpired: 0},
	}

	weekAgo := formatTime(s.now().AddDate(0, 0, -7))
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(is_favorite), 0),
		COALESCE(SUM(applied), 0),
		COALESCE(SUM(CASE WHEN first_seen_at >= ? THEN 1 ELSE 0 END), 0)
		FROM postings`+cond, append([]any{weekAgo}, args...)...).
		Scan(&stats.TotalJobs, &stats.Favorites, &stats.Applied, &stats.NewLast7Days)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("computing statistics: %w", err)
	}

	if err := s.countBy(ctx, "source", cond, args, func(k string, n int) { stats.Sources[model.Source(k)] = n }); err != nil {
		return model.Statistics{}, err
	}
	if err := s.countBy(ctx, "status", cond, args, func(k string, n int) { stats.Status[model.Status(k)] = n }); err != nil {
		return model.Statistics{}, err
	}
	return stats, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, column, cond string, args []any, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM postings"+cond+" GROUP BY "+column, args...)
	if err != nil {
		return fmt.Errorf("counting postings by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("counting postings by %s: %w", column, err)
		}
		fn(key, n)
	}
	return rows.Err()
}

// MarkInactive moves ACTIVE postings matching c to INACTIVE and returns how
// many changed. Running it twice with the same criteria changes nothing the
// second time.
func (s *SQLiteStore) MarkInactive(ctx context.Context, c model.SweepCriteria) (int, error) {
	now := c.Now
	if now.IsZero() {
		now = s.now()
	}

	conds := []string{"(expire_at IS NOT NULL AND expire_at < ?)"}
	args := []any{string(model.StatusInactive), string(model.StatusActive), formatTime(now)}
	if c.MaxAge > 0 {
		conds = append(conds, "first_seen_at < ?")
		args = append(args, formatTime(now.Add(-c.MaxAge)))
	}
	if c.StaleThreshold > 0 {
		conds = append(conds, "COALESCE(last_checked_at, first_seen_at) < ?")
		args = append(args, formatTime(now.Add(-c.StaleThreshold)))
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE postings SET status = ? WHERE status = ? AND ("+strings.Join(conds, " OR ")+")", args...)
	if err != nil {
		return 0, fmt.Errorf("marking postings inactive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("marking postings inactive: %w", err)
	}
	return int(n), nil
}
