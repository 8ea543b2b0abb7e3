package main

import (
	"context"
	"fmt"
	"os"

	"github.com/amishk599/jobsync/internal/browse"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/store"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse stored postings interactively (TUI)",
	Long:  "Shows the source picker TUI, then the split-pane posting view. Favorites, hides and applied marks are saved immediately.",
	RunE:  runBrowseCmd,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

// browseLimit is the most postings loaded into one browse session.
const browseLimit = 1000

func runBrowseCmd(cmd *cobra.Command, args []string) error {
	// No logger here: log output before the alt-screen starts corrupts the display.
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

	runBrowse(sqlStore)
	return nil
}

func runBrowse(sqlStore *store.SQLiteStore) {
	// "All" first, then one entry per source.
	scopes := append([]model.Source{""}, model.Sources...)

	for {
		stats, err := sqlStore.Statistics(context.Background(), model.StatsQuery{})
		if err != nil {
			fmt.Printf("Error reading statistics: %v\n", err)
			return
		}
		options := []browse.PickerOption{{Label: "All sources", Count: stats.TotalJobs}}
		for _, src := range model.Sources {
			options = append(options, browse.PickerOption{Label: string(src), Count: stats.Sources[src]})
		}

		choice, err := browse.RunSourcePicker(options)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if choice < 0 {
			return
		}
		source := scopes[choice]

		label := "all sources"
		if source != "" {
			label = string(source)
		}
		postings, err := browse.RunLoader(label, func(ctx context.Context) ([]model.Posting, error) {
			notHidden := false
			list, _, err := sqlStore.ListPostings(ctx, model.PostingQuery{
				Source:   source,
				IsHidden: &notHidden,
				Limit:    browseLimit,
			})
			return list, err
		})
		if err != nil {
			fmt.Printf("Error loading postings: %v\n", err)
			continue
		}

		wantQuit, err := browse.Run(sqlStore, postings)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
	}
}
