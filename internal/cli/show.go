package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ath-alerts/internal/app"
)

var (
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent notification log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List tracked assets with their stored snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Assets(cmd.Context())
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of entries to display")
}
