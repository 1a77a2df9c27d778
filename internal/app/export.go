package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"listing-radar/internal/scoring"
	"listing-radar/internal/storage"
)

var labelColors = map[string]drawing.Color{
	string(scoring.LabelHiddenGem):   drawing.ColorFromHex("2ecc71"),
	string(scoring.LabelSpeculative): drawing.ColorFromHex("e67e22"),
	string(scoring.LabelGoodDeal):    drawing.ColorFromHex("3498db"),
	string(scoring.LabelNeutral):     drawing.ColorFromHex("95a5a6"),
	string(scoring.LabelToxic):       drawing.ColorFromHex("e74c3c"),
}

// Export renders tracked listings as CSV and/or a PNG scatter of normalised
// price against score.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	listings, err := store.ListListings(ctx, storage.ListFilter{
		Category:   opts.Category,
		ActiveOnly: !opts.IncludeInactive,
	})
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		a.Logger.Info().Msg("no listings found for export")
		return nil
	}

	downsampled := downsampleListings(listings, opts.MaxPoints)
	a.Logger.Info().Int("total", len(listings)).Int("exported", len(downsampled)).Msg("exporting listings")

	if opts.CSVPath != "" {
		if err := writeListingsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		scored := lo.Filter(downsampled, func(l storage.Listing, _ int) bool { return l.Evaluation != nil })
		if len(scored) < 2 {
			a.Logger.Warn().Int("scored", len(scored)).Msg("not enough scored listings to plot")
			return nil
		}
		if err := writeScatterPNG(opts.PNGPath, scored); err != nil {
			return err
		}
	}

	return nil
}

func downsampleListings(listings []storage.Listing, max int) []storage.Listing {
	if max <= 0 || len(listings) <= max {
		return listings
	}
	if max == 1 {
		return listings[:1]
	}

	result := make([]storage.Listing, 0, max)
	step := float64(len(listings)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(listings) {
			idx = len(listings) - 1
		}
		result = append(result, listings[idx])
	}
	return result
}

func writeListingsCSV(path string, listings []storage.Listing) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "title", "category", "brand", "tier", "cluster_key", "price", "currency", "normalized_price",
		"first_seen", "last_seen", "price_changes", "velocity", "active", "score", "label", "flags", "z_score", "explanation"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, l := range listings {
		var score, label, flags, z, explanation string
		if ev := l.Evaluation; ev != nil {
			score = strconv.Itoa(ev.Score)
			label = ev.Label
			flags = strings.Join(ev.Flags, "|")
			z = strconv.FormatFloat(ev.Z, 'f', 4, 64)
			explanation = ev.Explanation
		}
		record := []string{
			l.ID,
			l.Title,
			l.Category,
			l.Brand,
			l.Tier,
			l.ClusterKey,
			l.Price.String(),
			l.Currency,
			strconv.FormatFloat(l.NormalizedPrice, 'f', 2, 64),
			l.FirstSeen.UTC().Format(time.RFC3339),
			l.LastSeen.UTC().Format(time.RFC3339),
			strconv.Itoa(l.PriceChanges),
			strconv.FormatFloat(l.Velocity, 'f', 6, 64),
			strconv.FormatBool(l.Active),
			score,
			label,
			flags,
			z,
			explanation,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeScatterPNG(path string, listings []storage.Listing) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	byLabel := lo.GroupBy(listings, func(l storage.Listing) string { return l.Evaluation.Label })
	series := make([]chart.Series, 0, len(byLabel))
	for _, label := range scoring.Labels {
		group, ok := byLabel[string(label)]
		if !ok {
			continue
		}
		color, ok := labelColors[string(label)]
		if !ok {
			color = chart.ColorBlack
		}
		series = append(series, chart.ContinuousSeries{
			Name: string(label),
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    4,
				DotColor:    color,
			},
			XValues: lo.Map(group, func(l storage.Listing, _ int) float64 { return l.NormalizedPrice }),
			YValues: lo.Map(group, func(l storage.Listing, _ int) float64 { return float64(l.Evaluation.Score) }),
		})
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name:           "Normalised price",
			ValueFormatter: priceFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Opportunity score",
			ValueFormatter: priceFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
