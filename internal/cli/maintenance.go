package cli

import (
	"github.com/spf13/cobra"

	"listing-radar/internal/service"
)

var (
	rescoreCategory string
	rescoreDryRun   bool
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Re-evaluate active listings from stored state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rescore(cmd.Context(), service.RescoreOptions{
			Category: rescoreCategory,
			DryRun:   rescoreDryRun,
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deactivate listings not seen within engine.stale_after",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sweep(cmd.Context())
	},
}

func init() {
	rescoreCmd.Flags().StringVar(&rescoreCategory, "category", "", "Only rescore this category")
	rescoreCmd.Flags().BoolVar(&rescoreDryRun, "dry-run", false, "Evaluate without writing results")
}
