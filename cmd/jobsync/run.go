package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/pipeline"
	"github.com/amishk599/jobsync/internal/store"
	"github.com/spf13/cobra"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:       "run [finn|nav|all]",
	Short:     "Run ingestion once and exit",
	Long:      "Runs the pipeline once for one source or all enabled sources. With --dry-run nothing is written to the database.",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"finn", "nav", "all"},
	RunE:      runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and filter, but do not write to the database")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	target := "all"
	if len(args) == 1 {
		target = args[0]
	}

	var st pipeline.Store
	if dryRun {
		logger.Info("dry-run mode enabled, nothing will be stored")
		st = store.NewNopStore()
	} else {
		sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			logger.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		defer sqlStore.Close()
		st = sqlStore
	}

	runners, err := buildRunners(cfg, st, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	var selected []*pipeline.Runner
	if target == "all" {
		for _, source := range model.Sources {
			if r, ok := runners[source]; ok {
				selected = append(selected, r)
			}
		}
	} else {
		source, _ := model.ParseSource(target)
		r, ok := runners[source]
		if !ok {
			logger.Error("source is disabled in config", "source", string(source))
			os.Exit(1)
		}
		selected = append(selected, r)
	}
	if len(selected) == 0 {
		logger.Error("no sources enabled")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := false
	fmt.Printf("%-6s %8s %6s %9s %11s %7s %8s\n", "Source", "Fetched", "Added", "Filtered", "Duplicates", "Errors", "Removed")
	for _, r := range selected {
		stats, err := r.Run(ctx)
		if err != nil {
			logger.Error("run failed", "source", string(r.Source), "error", err)
			failed = true
			continue
		}
		if stats.NotModified {
			fmt.Printf("%-6s not modified since last sync\n", stats.Source)
			continue
		}
		fmt.Printf("%-6s %8d %6d %9d %11d %7d %8d\n",
			stats.Source, stats.Fetched, stats.Added, stats.Filtered, stats.Duplicates, stats.Errors, stats.Removed)
	}
	if failed {
		os.Exit(1)
	}
	return nil
}
