package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/amishk599/jobsync/internal/config"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/store"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List sources and their sync state",
	Long:  "Prints each source with whether it is enabled, when it last synced and what the last run changed.",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	states, err := sqlStore.SyncStates(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read sync state: %v\n", err)
		os.Exit(1)
	}
	bySource := make(map[model.Source]model.SyncState, len(states))
	for _, st := range states {
		bySource[st.Source] = st
	}

	fmt.Printf("%-6s %-9s %-17s %-16s %6s %8s\n", "Source", "Status", "Last sync", "Schedule", "Added", "Removed")
	fmt.Println(strings.Repeat("─", 68))
	for _, src := range model.Sources {
		status := "enabled"
		if !sourceEnabled(cfg, src) {
			status = "disabled"
		}
		last := "never"
		st, ok := bySource[src]
		if ok {
			last = st.LastSyncAt.In(cfg.Location()).Format("2006-01-02 15:04")
		}
		fmt.Printf("%-6s %-9s %-17s %-16s %6d %8d\n",
			src, status, last, scheduleFor(cfg, src), st.JobsAddedLastRun, st.JobsRemovedLastRun)
	}
	return nil
}

func scheduleFor(cfg *config.Config, src model.Source) string {
	if src == model.SourceNAV {
		return cfg.Schedule.NAV
	}
	return cfg.Schedule.FINN
}
