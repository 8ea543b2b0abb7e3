package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/amishk599/jobsync/internal/api"
	"github.com/amishk599/jobsync/internal/config"
	"github.com/amishk599/jobsync/internal/expiry"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/pipeline"
	"github.com/amishk599/jobsync/internal/scheduler"
	"github.com/amishk599/jobsync/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler and the API server",
	Long:  "Runs the FINN, NAV and sweep jobs on their cron schedules and serves the API; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	logger.Info("config loaded",
		"database", cfg.Database.Path,
		"keywords", len(cfg.Keywords),
		"finn", cfg.Sources.FINN.Enabled,
		"nav", cfg.Sources.NAV.Enabled,
		"timezone", cfg.Schedule.Timezone,
	)

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	runners, err := buildRunners(cfg, sqlStore, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	sweeper := expiry.NewSweeper(sqlStore, cfg.Expiry.MaxAge, logger)

	sched := scheduler.NewScheduler(cfg.Location(), logger)
	for _, job := range scheduledJobs(cfg, runners, sweeper, logger) {
		if err := sched.Add(job); err != nil {
			logger.Error("failed to schedule job", "job", job.Name, "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := newAPIServer(cfg, sqlStore, sched, logger)
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- srv.ListenAndServe(ctx, cfg.Server.Addr)
	}()

	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
	}
	if err := <-apiErr; err != nil {
		logger.Error("api server error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}

// scheduledJobs returns one job per enabled source plus the expiry sweep.
// Job names are the lower-case source names used by the trigger endpoint.
func scheduledJobs(cfg *config.Config, runners map[model.Source]*pipeline.Runner, sweeper *expiry.Sweeper, logger *slog.Logger) []scheduler.Job {
	specs := map[model.Source]string{
		model.SourceFINN: cfg.Schedule.FINN,
		model.SourceNAV:  cfg.Schedule.NAV,
	}

	var jobs []scheduler.Job
	for _, source := range model.Sources {
		r, ok := runners[source]
		if !ok {
			continue
		}
		jobs = append(jobs, scheduler.Job{
			Name:     strings.ToLower(string(source)),
			Schedule: specs[source],
			Run: func(ctx context.Context) error {
				_, err := r.Run(ctx)
				if errors.Is(err, pipeline.ErrRunInProgress) {
					logger.Warn("run skipped, previous run still active", "source", string(source))
					return nil
				}
				return err
			},
		})
	}

	jobs = append(jobs, scheduler.Job{
		Name:     "sweep",
		Schedule: cfg.Schedule.Sweep,
		Run: func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx, cfg.Expiry.StaleThreshold)
			return err
		},
	})
	return jobs
}

// newAPIServer builds the API; sched may be nil, which disables the
// scheduler routes.
func newAPIServer(cfg *config.Config, st api.Store, sched api.Scheduler, logger *slog.Logger) *api.Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewServer(api.Options{
		Store:          st,
		Scheduler:      sched,
		AIEnabled:      cfg.AI.Enabled(),
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	})
}
