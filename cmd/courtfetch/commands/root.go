package commands

import (
	"context"
	"courtfetch/internal/components/telemetry"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configName *string
	verbose    *bool
	dumpDir    *string
)

func init() {
	configName = rootCmd.PersistentFlags().String("config", "courtfetch.json5", "The config file, looked up from the working directory upwards.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging.")
	dumpDir = rootCmd.PersistentFlags().String("dump", "", "Write every http exchange with a portal to this directory.")
}

var rootCmd = &cobra.Command{
	Use:   "courtfetch",
	Short: "courtfetch retrieves court orders and judgments from captcha gated portals.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
