package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one detection cycle and print the summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := getApp().Scan(cmd.Context())
		if err != nil {
			return err
		}

		if summary.Skipped {
			fmt.Fprintln(cmd.OutOrStdout(), "cycle skipped: feed circuit open")
			return nil
		}
		fmt.Fprintf(
			cmd.OutOrStdout(),
			"assets: %d  events: %d  notified: %d  suppressed: %d  errors: %d  duration: %s\n",
			summary.Assets,
			summary.Events,
			summary.Notified,
			summary.Suppressed,
			summary.Errors,
			summary.Duration,
		)
		return nil
	},
}
