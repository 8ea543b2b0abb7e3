package main

import (
	"context"
	"fmt"
	"os"

	"github.com/amishk599/jobsync/internal/expiry"
	"github.com/amishk599/jobsync/internal/store"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark stale and past-deadline postings inactive",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	n, err := expiry.NewSweeper(sqlStore, cfg.Expiry.MaxAge, logger).Sweep(context.Background(), cfg.Expiry.StaleThreshold)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%d postings marked inactive\n", n)
	return nil
}
