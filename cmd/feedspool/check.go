package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"feedspool/internal/fetcher"
	"feedspool/internal/parser"
)

var checkURL string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch and parse a single feed URL as a diagnostic",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, err := cfg.RequestTimeoutDuration()
		if err != nil {
			return err
		}

		outcome := fetcher.NewClient().Fetch(cmd.Context(), checkURL, timeout, nil)
		if outcome.Kind != fetcher.Ok {
			fmt.Fprintf(os.Stderr, "fetch outcome: %s status=%q cause=%v\n",
				outcome.Kind, outcome.Status, outcome.Cause)
			return nil
		}

		feed, err := parser.New().Parse(outcome.Body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(feed)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkURL, "url", "", "feed URL to check")
	_ = checkCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(checkCmd)
}
