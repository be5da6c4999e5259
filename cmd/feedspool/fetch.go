package main

import (
	"bufio"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"feedspool/internal/fetcher"
	"feedspool/internal/parser"
	"feedspool/internal/poll"
	"feedspool/internal/scheduler"
)

var feedsFile string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Poll every feed URL in the configured list file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		path := feedsFile
		if path == "" {
			path = cfg.FetchFeedsFilename
		}
		urls, err := loadFeedURLs(path)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Pool().Close()

		timeout, err := cfg.RequestTimeoutDuration()
		if err != nil {
			return err
		}

		poller := poll.New(st, fetcher.NewClient(), parser.New())
		sched := scheduler.New(poller, cfg.FetchConcurrencyLimit)

		params := poll.Params{
			RequestTimeout:        timeout,
			MinFetchPeriodSeconds: cfg.FetchMinFetchPeriod,
			RetainSrc:             cfg.FetchRetainSrc,
			SkipEntryUpdate:       cfg.FetchSkipEntryUpdate,
		}

		stats := sched.Run(ctx, scheduler.SliceSource(urls), params)

		color.Green("✓ %d updated, %d not modified", stats.Updated, stats.NotModified)
		if stats.Skipped > 0 {
			color.Yellow("- %d skipped (fetched recently)", stats.Skipped)
		}
		if stats.Errored > 0 {
			color.Red("✗ %d errored", stats.Errored)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&feedsFile, "feeds", "", "path to the feed URL list file")
	rootCmd.AddCommand(fetchCmd)
}

// loadFeedURLs reads one URL per line, ignoring blank lines and #-prefixed
// comments.
func loadFeedURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
