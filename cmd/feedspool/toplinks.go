package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"feedspool/internal/readmodel"
)

const (
	toplinksWindow    = 30 * 24 * time.Hour
	toplinksThreshold = 3
)

var toplinksCmd = &cobra.Command{
	Use:   "toplinks",
	Short: "Report links referenced across several feeds recently",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Pool().Close()

		top, err := readmodel.New(st).TopLinks(ctx, time.Now().UTC(), toplinksWindow, toplinksThreshold)
		if err != nil {
			return err
		}

		for _, link := range top {
			fmt.Printf("* (%d) %s\n", link.Count, link.Link)
			fmt.Printf("    * %v\n", link.Feeds)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toplinksCmd)
}
