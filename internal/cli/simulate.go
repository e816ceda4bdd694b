package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateChain    string
	simulateBaseline float64
	simulateCurrent  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Simulate a price movement and exercise the notification channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateChain == "" {
			return errors.New("--chain is required")
		}
		if simulateBaseline <= 0 || simulateCurrent <= 0 {
			return errors.New("--baseline and --current must be greater than 0")
		}

		baseline := decimal.NewFromFloat(simulateBaseline)
		current := decimal.NewFromFloat(simulateCurrent)
		return getApp().SimulateMove(cmd.Context(), simulateChain, baseline, current)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateChain, "chain", "ethereum", "Chain to simulate")
	simulateCmd.Flags().Float64Var(&simulateBaseline, "baseline", 0, "Baseline USD price one window ago")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "Current USD price")
}
