package main

import (
	"os"
	"text/template"

	"github.com/spf13/cobra"

	"feedspool/internal/readmodel"
	"feedspool/internal/store"
)

const renderLimit = 250

const renderTemplate = `Entries:
{{range .Entries}}{{.Entry.Published}} - {{if .Feed}}{{.Feed.Title}}{{end}} - {{.Entry.Title}} - {{.Entry.Link}}
{{end}}`

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the latest entries as text",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Pool().Close()

		entries, err := readmodel.New(st).RecentEntries(ctx, renderLimit)
		if err != nil {
			return err
		}

		tmpl := template.Must(template.New("entries").Parse(renderTemplate))
		return tmpl.Execute(os.Stdout, struct {
			Entries []store.EntryWithFeed
		}{Entries: entries})
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
