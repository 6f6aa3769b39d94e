package commands

import (
	"courtfetch/internal/components/serviceutil"
	"courtfetch/internal/portal"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(profilesCmd)
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Lists the portals courtfetch knows about.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _, err := loadConfig(*configName)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		registry, err := portal.NewRegistry(cfg.Portals...)
		if err != nil {
			serviceutil.Fatal("failed to load portals", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Portal", "URL", "Searches"})
		for _, p := range registry.List() {
			var kinds []string
			for _, kind := range portal.AllKinds {
				if p.Supports(kind) {
					kinds = append(kinds, string(kind))
				}
			}
			t.AppendRow(table.Row{p.ID, p.Label, p.BaseURL, strings.Join(kinds, ", ")})
		}
		t.Render()
	},
}
