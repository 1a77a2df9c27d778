package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"listing-radar/internal/app"
)

var (
	showLimit      int
	showCategory   string
	showLabel      string
	showActionable bool
	showAlerts     bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display tracked listings by score, or recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:      showLimit,
			Category:   showCategory,
			Label:      showLabel,
			Actionable: showActionable,
			Alerts:     showAlerts,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().StringVar(&showCategory, "category", "", "Only show this category")
	showCmd.Flags().StringVar(&showLabel, "label", "", "Only show this label")
	showCmd.Flags().BoolVar(&showActionable, "actionable", false, "Only show Hidden Gem, Good Deal and Speculative listings")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Show recently delivered alerts instead of listings")
}
