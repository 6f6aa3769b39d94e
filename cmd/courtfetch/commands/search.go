package commands

import (
	"context"
	"courtfetch/internal/components/serviceutil"
	"courtfetch/internal/engine"
	"fmt"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	searchPortal *string
	searchQuery  QueryConfig
)

func init() {
	flags := searchCmd.Flags()
	searchPortal = flags.String("portal", "andhra", "The portal to search, see `courtfetch profiles`.")
	flags.StringVar(&searchQuery.Kind, "kind", "", "The kind of search, guessed from the other flags when empty.")
	flags.StringVar(&searchQuery.Citation, "citation", "", "A citation like \"2025 (1) ALT 5\".")
	flags.StringVar(&searchQuery.Party, "party", "", "A party name, at least 3 characters.")
	flags.IntVar(&searchQuery.Year, "year", 0, "The registration year of a party search.")
	flags.StringVar(&searchQuery.From, "from", "", "The start of a date range (YYYY-MM-DD).")
	flags.StringVar(&searchQuery.To, "to", "", "The end of a date range (YYYY-MM-DD).")
	flags.IntVar(&searchQuery.LastDays, "last-days", 0, "Search the given number of days up to today instead of --from/--to.")
	flags.StringVar(&searchQuery.JudgeCode, "judge", "", "A judge code, see `courtfetch judges`.")
	flags.StringVar(&searchQuery.JudgeName, "judge-name", "", "A judge name, matched against the portal's list of judges.")
	flags.StringVar(&searchQuery.ActCode, "act", "", "An act code, see `courtfetch acts`.")
	flags.StringVar(&searchQuery.ActName, "act-name", "", "An act name, matched against the portal's acts.")
	flags.StringVar(&searchQuery.Section, "section", "", "The section of an act search.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search [--portal <id>] (--citation <c> | --party <p> | --judge <code> | --act <code> | --from <date> --to <date>)",
	Short: "Runs one search and downloads every document it finds.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close(context.WithoutCancel(ctx))

		report, err := a.search(ctx, *searchPortal, searchQuery)
		if len(report.Records) > 0 {
			printReport(report)
		}
		if err != nil {
			serviceutil.Fatal("search failed", err)
		}
		slog.Info("search finished", "records", len(report.Records), "written", report.DocumentsWritten, "dir", report.SearchDir)
	},
}

func printReport(report engine.Report) {
	t := newTable()
	t.AppendHeader(table.Row{"#", "Case", "Order date", "Status", "Detail"})
	for _, view := range report.Records {
		t.AppendRow(table.Row{view.Sequence, view.CaseNumber, view.OrderDate, view.Status, view.Detail})
	}
	t.AppendFooter(table.Row{"", "", "", "written", fmt.Sprint(report.DocumentsWritten)})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 5, WidthMax: 60}})
	t.Render()
}
