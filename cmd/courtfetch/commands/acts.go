package commands

import (
	"courtfetch/internal/components/serviceutil"
	"strings"

	"github.com/spf13/cobra"
)

var actsPortal *string

func init() {
	actsPortal = actsCmd.Flags().String("portal", "andhra", "The portal to list acts of.")
	rootCmd.AddCommand(actsCmd)
}

var actsCmd = &cobra.Command{
	Use:   "acts [--portal <id>] [search words...]",
	Short: "Lists the act types whose name matches the search.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close(ctx)

		profile, err := a.registry.Get(*actsPortal)
		if err != nil {
			serviceutil.Fatal("unknown portal", err)
		}
		options, err := a.catalog.Acts(ctx, profile, strings.Join(args, " "))
		if err != nil {
			serviceutil.Fatal("failed to list acts", err)
		}
		printOptions("Act", options)
	},
}
