package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/amishk599/jobsync/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the API without scheduling",
	Long:  "Serves the posting API over the existing database. Scheduler endpoints answer 503.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := newAPIServer(cfg, sqlStore, nil, logger)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		logger.Error("api server error", "error", err)
		os.Exit(1)
	}
	return nil
}
