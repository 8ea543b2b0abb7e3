package main

import (
	"net/http"
	"os"

	"github.com/amishk599/jobsync/internal/notifier"
	"github.com/amishk599/jobsync/internal/retry"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	Long:  "Sends a sample posting through the configured notifier.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	retrier := retry.New(cfg.HTTP.MaxRetries, cfg.HTTP.RetryBaseDelay, logger)
	n := setupNotifier(cfg, &http.Client{Timeout: cfg.HTTP.Timeout}, retrier, logger)
	if n == nil {
		logger.Error("notifications are disabled (notification.type is \"none\")")
		os.Exit(1)
	}

	if err := notifier.SendTestMessage(n); err != nil {
		logger.Error("test notification failed", "error", err)
		os.Exit(1)
	}
	logger.Info("test notification sent successfully")
	return nil
}
