// Package expiry reclassifies postings that have passed their deadline or
// dropped out of the upstream feeds.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

const (
	DefaultStaleThreshold = 30 * 24 * time.Hour
	DefaultMaxAge         = 180 * 24 * time.Hour
)

// Store is the part of the posting store the sweeper needs.
type Store interface {
	MarkInactive(ctx context.Context, c model.SweepCriteria) (int, error)
}

// Sweeper marks ACTIVE postings INACTIVE once their deadline has passed, they
// are older than maxAge, or no run has observed them within the stale threshold.
type Sweeper struct {
	store  Store
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper returns a sweeper. A non-positive maxAge uses DefaultMaxAge.
func NewSweeper(store Store, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Sweeper{store: store, maxAge: maxAge, logger: logger, now: time.Now}
}

// Sweep runs one pass and returns the number of postings it deactivated. A
// non-positive staleThreshold uses DefaultStaleThreshold. Postings already
// INACTIVE or EXPIRED are never touched, so repeated sweeps are no-ops.
func (s *Sweeper) Sweep(ctx context.Context, staleThreshold time.Duration) (int, error) {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	start := s.now().UTC()

	n, err := s.store.MarkInactive(ctx, model.SweepCriteria{
		Now:            start,
		StaleThreshold: staleThreshold,
		MaxAge:         s.maxAge,
	})
	if err != nil {
		return 0, fmt.Errorf("expiry sweep: %w", err)
	}

	s.logger.Info("expiry sweep complete",
		"deactivated", n,
		"stale_threshold", staleThreshold,
		"max_age", s.maxAge,
		"duration", s.now().Sub(start),
	)
	return n, nil
}
