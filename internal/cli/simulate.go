package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ath-alerts/internal/app"
)

var (
	simulateAsset  string
	simulateSymbol string
	simulateName   string
	simulatePrice  float64
	simulateATH    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-ath",
	Short: "Push a synthetic observation through the live pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			AssetID:      simulateAsset,
			Symbol:       simulateSymbol,
			Name:         simulateName,
			CurrentPrice: decimal.NewFromFloat(simulatePrice),
			FeedATH:      decimal.NewFromFloat(simulateATH),
		}

		summary, err := getApp().SimulateATH(cmd.Context(), opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(
			cmd.OutOrStdout(),
			"events: %d  notified: %d  suppressed: %d  errors: %d\n",
			summary.Events,
			summary.Notified,
			summary.Suppressed,
			summary.Errors,
		)
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAsset, "asset", "", "Asset id to simulate")
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Asset symbol (defaults to upper-cased id)")
	simulateCmd.Flags().StringVar(&simulateName, "name", "", "Asset name (defaults to id)")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Observed current price")
	simulateCmd.Flags().Float64Var(&simulateATH, "feed-ath", 0, "Feed-reported ATH (defaults to price)")
}
