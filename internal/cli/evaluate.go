package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"listing-radar/internal/app"
	"listing-radar/internal/listing"
)

var (
	evaluateFile     string
	evaluateID       string
	evaluateTitle    string
	evaluateURL      string
	evaluatePrice    string
	evaluateCurrency string
	evaluateJSON     bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Track and score observations immediately",
	Long: "Track and score one observation given by flags, or every line of a JSON-lines file " +
		"(--file, \"-\" for stdin). Notifications follow the alerting config.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.EvaluateOptions{File: evaluateFile, JSON: evaluateJSON}
		if evaluateFile == "" {
			if evaluateID == "" || evaluateTitle == "" || evaluatePrice == "" {
				return errors.New("--id, --title and --price are required without --file")
			}
			price, err := decimal.NewFromString(evaluatePrice)
			if err != nil {
				return fmt.Errorf("invalid --price value: %w", err)
			}
			opts.Observation = listing.Observation{
				ID:       evaluateID,
				Title:    evaluateTitle,
				URL:      evaluateURL,
				Price:    price,
				Currency: evaluateCurrency,
			}
		}
		return getApp().Evaluate(cmd.Context(), opts)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateFile, "file", "", "JSON-lines file of observations")
	evaluateCmd.Flags().StringVar(&evaluateID, "id", "", "Listing id")
	evaluateCmd.Flags().StringVar(&evaluateTitle, "title", "", "Listing title")
	evaluateCmd.Flags().StringVar(&evaluateURL, "url", "", "Listing URL")
	evaluateCmd.Flags().StringVar(&evaluatePrice, "price", "", "Asking price")
	evaluateCmd.Flags().StringVar(&evaluateCurrency, "currency", "TRY", "ISO currency code of --price")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Print results as JSON lines")
}
