// Package api serves stored postings, statistics and scheduler controls over
// HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/scheduler"
)

// Store is the read/write surface of the posting store the API needs.
type Store interface {
	Ping(ctx context.Context) error
	ListPostings(ctx context.Context, q model.PostingQuery) ([]model.Posting, int, error)
	GetPosting(ctx context.Context, id int64) (model.Posting, error)
	GetPostingByURL(ctx context.Context, url string) (model.Posting, error)
	UpdateMetadata(ctx context.Context, id int64, u model.MetadataUpdate) (model.Posting, error)
	HidePosting(ctx context.Context, id int64) error
	Statistics(ctx context.Context, q model.StatsQuery) (model.Statistics, error)
	SyncStates(ctx context.Context) ([]model.SyncState, error)
	ListIrrelevant(ctx context.Context, limit int) ([]model.IrrelevantURL, error)
	DeleteIrrelevant(ctx context.Context, url string) error
}

// Scheduler is the admin surface of the job scheduler.
type Scheduler interface {
	Status() []scheduler.JobStatus
	Trigger(name string) error
	Pause(name string) error
	Resume(name string) error
}

// Options configures a Server. Scheduler may be nil when the API runs
// without background jobs.
type Options struct {
	Store          Store
	Scheduler      Scheduler
	AIEnabled      bool
	CORSOrigins    []string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Server holds the API dependencies.
type Server struct {
	store     Store
	sched     Scheduler
	aiEnabled bool
	origins   []string
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewServer(opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	return &Server{
		store:     opts.Store,
		sched:     opts.Scheduler,
		aiEnabled: opts.AIEnabled,
		origins:   opts.CORSOrigins,
		timeout:   opts.RequestTimeout,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware(s.origins))

	g.GET("/health", withTimeout(s.timeout, s.health))

	v1 := g.Group("/api/v1")
	{
		v1.GET("/postings", withTimeout(s.timeout, s.listPostings))
		v1.GET("/postings/lookup", withTimeout(s.timeout, s.lookupPosting))
		v1.GET("/postings/:id", withTimeout(s.timeout, s.getPosting))
		v1.PATCH("/postings/:id", withTimeout(s.timeout, s.updatePosting))
		v1.DELETE("/postings/:id", withTimeout(s.timeout, s.hidePosting))

		v1.GET("/stats", withTimeout(s.timeout, s.statistics))
		v1.GET("/sources", withTimeout(s.timeout, s.sources))
		v1.GET("/irrelevant", withTimeout(s.timeout, s.listIrrelevant))
		v1.DELETE("/irrelevant", withTimeout(s.timeout, s.deleteIrrelevant))

		sched := v1.Group("/scheduler")
		sched.Use(s.requireScheduler)
		{
			sched.GET("/status", s.schedulerStatus)
			sched.POST("/trigger/:job", s.schedulerAction(Scheduler.Trigger, "triggered"))
			sched.POST("/pause/:job", s.schedulerAction(Scheduler.Pause, "paused"))
			sched.POST("/resume/:job", s.schedulerAction(Scheduler.Resume, "resumed"))
		}
	}

	g.NoRoute(func(c *gin.Context) {
		JSONError(c, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	return g
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down api")
	return srv.Shutdown(shutdownCtx)
}
