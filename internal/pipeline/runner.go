package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobsync/internal/deadline"
	"github.com/amishk599/jobsync/internal/model"
)

// ErrRunInProgress is returned when a run for the same source is already active.
var ErrRunInProgress = errors.New("run already in progress")

// Stats summarizes one run. It is returned even when the run fails.
type Stats struct {
	RunID       string        `json:"run_id"`
	Source      model.Source  `json:"source"`
	Fetched     int           `json:"fetched"`
	Added       int           `json:"added"`
	Filtered    int           `json:"filtered"`
	Duplicates  int           `json:"duplicates"`
	Errors      int           `json:"errors"`
	Removed     int           `json:"removed"`
	NotModified bool          `json:"not_modified"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Runner owns the ingestion pipeline for a single source:
// fetch → skip cached/known → filter → summarize → commit → notify.
type Runner struct {
	Source     model.Source
	fetcher    model.Fetcher
	keywords   []string
	store      Store
	filter     RelevancyFilter
	summarizer Summarizer
	notifier   model.Notifier
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
}

// NewRunner creates a runner wired with all its dependencies.
func NewRunner(
	source model.Source,
	fetcher model.Fetcher,
	keywords []string,
	store Store,
	filter RelevancyFilter,
	summarizer Summarizer,
	notifier model.Notifier,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		Source:     source,
		fetcher:    fetcher,
		keywords:   keywords,
		store:      store,
		filter:     filter,
		summarizer: summarizer,
		notifier:   notifier,
		logger:     logger.With("source", string(source)),
		now:        time.Now,
	}
}

// Run performs one ingestion run. Runs for the same Runner never overlap; a
// second caller gets ErrRunInProgress immediately.
//
// Only a failed fetch returns an error. Item-level failures are counted in
// Stats.Errors and the run still commits its writes and sync state. A
// not-modified upstream ends the run without touching sync state.
func (r *Runner) Run(ctx context.Context) (stats Stats, err error) {
	stats = Stats{RunID: uuid.NewString(), Source: r.Source, StartedAt: r.now().UTC()}
	if !r.mu.TryLock() {
		return stats, ErrRunInProgress
	}
	defer r.mu.Unlock()
	defer func() { stats.Duration = r.now().Sub(stats.StartedAt) }()

	log := r.logger.With("run_id", stats.RunID)

	state, _, err := r.store.SyncState(ctx, r.Source)
	if err != nil {
		return stats, fmt.Errorf("run %s: reading sync state: %w", r.Source, err)
	}

	res, err := r.fetcher.Fetch(ctx, model.FetchRequest{
		Cursor:   state.ContinuationToken,
		Keywords: r.keywords,
		Known:    r.known(ctx),
	})
	if err != nil {
		log.Error("fetch failed, sync state untouched", "error", err)
		return stats, fmt.Errorf("run %s: fetching: %w", r.Source, err)
	}
	if res.NotModified {
		stats.NotModified = true
		log.Info("upstream not modified")
		return stats, nil
	}

	stats.Fetched = len(res.Postings) + res.ItemErrors
	stats.Errors = res.ItemErrors

	batch := model.RunBatch{Source: r.Source, RunAt: stats.StartedAt, Withdrawn: res.Withdrawn}
	seen := make(map[string]bool, len(res.Postings))
	for _, p := range res.Postings {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("run %s: %w", r.Source, err)
		}
		if seen[p.URL] {
			stats.Duplicates++
			continue
		}
		seen[p.URL] = true

		if err := r.processItem(ctx, p, &batch, &stats); err != nil {
			log.Warn("item failed", "url", p.URL, "error", err)
			stats.Errors++
		}
	}

	batch.SyncState = &model.SyncState{
		Source:            r.Source,
		LastSyncAt:        stats.StartedAt,
		ContinuationToken: res.Cursor,
	}
	committed, err := r.store.CommitRun(ctx, batch)
	if err != nil {
		return stats, fmt.Errorf("run %s: committing: %w", r.Source, err)
	}
	stats.Added = len(committed.Inserted)
	stats.Duplicates += committed.Duplicates
	stats.Removed = committed.Expired

	if len(committed.Inserted) > 0 && r.notifier != nil {
		if err := r.notifier.Notify(committed.Inserted); err != nil {
			log.Warn("notification failed", "error", err)
		}
	}

	log.Info("run complete",
		"fetched", stats.Fetched,
		"added", stats.Added,
		"filtered", stats.Filtered,
		"duplicates", stats.Duplicates,
		"errors", stats.Errors,
		"removed", stats.Removed,
	)
	return stats, nil
}

// processItem runs the per-item chain and appends its writes to batch.
func (r *Runner) processItem(ctx context.Context, p model.Posting, batch *model.RunBatch, stats *Stats) error {
	irrelevant, err := r.store.IsIrrelevant(ctx, p.URL)
	if err != nil {
		return err
	}
	if irrelevant {
		stats.Filtered++
		return nil
	}

	exists, err := r.store.HasPosting(ctx, p.URL)
	if err != nil {
		return err
	}
	if exists {
		stats.Duplicates++
		batch.Observed = append(batch.Observed, p.URL)
		return nil
	}

	decision := r.filter.Evaluate(ctx, p)
	if !decision.Accepted {
		stats.Filtered++
		batch.Irrelevant = append(batch.Irrelevant, model.IrrelevantURL{
			URL:        p.URL,
			Reason:     decision.Reason,
			RecordedAt: batch.RunAt,
		})
		r.logger.Debug("posting rejected", "url", p.URL, "reason", decision.Reason)
		return nil
	}

	p.Summary = r.summarizer.Summarize(ctx, p.Title, p.Description)
	p.Source = r.Source
	p.Status = model.StatusActive
	p.FirstSeenAt = batch.RunAt
	checked := batch.RunAt
	p.LastCheckedAt = &checked
	p.ExpireAt = deadline.ExpireAt(p.Deadline)
	batch.Postings = append(batch.Postings, p)
	return nil
}

// known tells adapters which URLs need no detail request. Lookup errors
// count as unknown so the item goes through the full chain.
func (r *Runner) known(ctx context.Context) func(string) bool {
	return func(url string) bool {
		if ok, err := r.store.HasPosting(ctx, url); err == nil && ok {
			return true
		}
		ok, err := r.store.IsIrrelevant(ctx, url)
		return err == nil && ok
	}
}
