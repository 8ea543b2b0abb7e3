package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/store"
	"github.com/spf13/cobra"
)

var (
	statsSource        string
	statsIncludeHidden bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print posting statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsSource, "source", "", "restrict to one source (finn or nav)")
	statsCmd.Flags().BoolVar(&statsIncludeHidden, "include-hidden", false, "count hidden postings too")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	q := model.StatsQuery{IncludeHidden: statsIncludeHidden}
	if statsSource != "" {
		src, ok := model.ParseSource(statsSource)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown source %q\n", statsSource)
			os.Exit(1)
		}
		q.Source = src
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	s, err := sqlStore.Statistics(context.Background(), q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read statistics: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-18s %d\n", "Total", s.TotalJobs)
	fmt.Printf("%-18s %d\n", "Favorites", s.Favorites)
	fmt.Printf("%-18s %d\n", "Applied", s.Applied)
	fmt.Printf("%-18s %d\n", "New last 7 days", s.NewLast7Days)
	fmt.Println(strings.Repeat("─", 24))
	for _, src := range model.Sources {
		fmt.Printf("%-18s %d\n", src, s.Sources[src])
	}
	fmt.Println(strings.Repeat("─", 24))
	for _, st := range []model.Status{model.StatusActive, model.StatusInactive, model.StatusExpired} {
		fmt.Printf("%-18s %d\n", st, s.Status[st])
	}
	return nil
}
