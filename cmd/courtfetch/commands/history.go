package commands

import (
	"courtfetch/internal/components/serviceutil"
	"errors"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().IntP("limit", "n", 20, "The number of searches to list.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [-n <limit>] [search id]",
	Short: "Lists past searches, or the outcome of every record of one search.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close(ctx)
		if a.ledger == nil {
			serviceutil.Fatal("no history", errors.New("the config has no ledger database"))
		}

		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				serviceutil.Fatal("invalid search id", err)
			}
			outcomes, err := a.ledger.Outcomes(ctx, id)
			if err != nil {
				serviceutil.Fatal("failed to read outcomes", err)
			}
			t := newTable()
			t.AppendHeader(table.Row{"#", "Case", "Order date", "Status", "Document"})
			for _, o := range outcomes {
				t.AppendRow(table.Row{o.Sequence, o.CaseNumber, o.OrderDate, o.Status, o.Path})
			}
			t.Render()
			return
		}

		searches, err := a.ledger.Recent(ctx, *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to read history", err)
		}
		t := newTable()
		t.AppendHeader(table.Row{"ID", "Started", "Portal", "Search", "Records", "Written", "Error"})
		for _, s := range searches {
			t.AppendRow(table.Row{
				s.ID,
				s.StartedAt.Format(time.DateTime),
				s.Portal,
				s.Label,
				s.Records,
				s.DocumentsWritten,
				s.Error,
			})
		}
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 7, WidthMax: 50}})
		t.Render()
	},
}
