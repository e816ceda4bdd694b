package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-track-alerts/internal/app"
)

var (
	showChain string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent price samples for a chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showChain == "" {
			return fmt.Errorf("--chain is required")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Chain: showChain,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showChain, "chain", "", "Chain to display (e.g. ethereum)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of samples to display")
}
