package cli

import (
	"github.com/spf13/cobra"

	"listing-radar/internal/app"
)

var (
	exportCategory  string
	exportInactive  bool
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tracked listings as CSV and/or a price vs score PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Category:        exportCategory,
			IncludeInactive: exportInactive,
			PNGPath:         exportPNGPath,
			CSVPath:         exportCSVPath,
			MaxPoints:       exportMaxPoints,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCategory, "category", "", "Only export this category")
	exportCmd.Flags().BoolVar(&exportInactive, "all", false, "Include deactivated listings")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum listings to export (defaults to config)")
}
