package commands

import (
	"courtfetch/internal/components/serviceutil"
	"courtfetch/internal/records"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var judgesPortal *string

func init() {
	judgesPortal = judgesCmd.Flags().String("portal", "andhra", "The portal to list judges of.")
	rootCmd.AddCommand(judgesCmd)
}

var judgesCmd = &cobra.Command{
	Use:   "judges [--portal <id>]",
	Short: "Lists the judges a portal can be searched by.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close(ctx)

		profile, err := a.registry.Get(*judgesPortal)
		if err != nil {
			serviceutil.Fatal("unknown portal", err)
		}
		options, err := a.catalog.Judges(ctx, profile)
		if err != nil {
			serviceutil.Fatal("failed to list judges", err)
		}
		printOptions("Judge", options)
	},
}

func printOptions(title string, options []records.Option) {
	t := newTable()
	t.AppendHeader(table.Row{"Code", title})
	for _, option := range options {
		t.AppendRow(table.Row{option.Value, option.Label})
	}
	t.Render()
}
