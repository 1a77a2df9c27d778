package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"

	"listing-radar/internal/scoring"
	"listing-radar/internal/storage"
)

// Show prints tracked listings, best score first, or recent alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Alerts {
		return a.showAlerts(ctx, store, opts.Limit)
	}

	filter := storage.ListFilter{
		Category:   opts.Category,
		Label:      opts.Label,
		ActiveOnly: true,
		Limit:      opts.Limit,
	}
	if opts.Actionable {
		filter.Labels = lo.FilterMap(scoring.Labels, func(l scoring.Label, _ int) (string, bool) {
			return string(l), l.Actionable()
		})
	}

	listings, err := store.ListListings(ctx, filter)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		fmt.Fprintln(a.Out, "no listings found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tScore\tLabel\tCategory\tBrand\tPrice\tVelocity%/h\tLast seen (UTC)\tFlags\tTitle")

	for _, l := range listings {
		score, label, flags := "-", "-", ""
		if ev := l.Evaluation; ev != nil {
			score = strconv.Itoa(ev.Score)
			label = ev.Label
			flags = strings.Join(ev.Flags, ",")
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s %s\t%.2f\t%s\t%s\t%s\n",
			l.ID,
			score,
			label,
			l.Category,
			l.Brand,
			formatDecimal(l.Price, 2),
			l.Currency,
			l.Velocity*100,
			l.LastSeen.UTC().Format(time.RFC3339),
			flags,
			sanitizeInline(l.Title),
		)
	}

	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, store storage.AlertStore, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tListing\tScore\tLabel\tFlags\tChannels")
	for _, alert := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.ListingID,
			alert.Score,
			alert.Label,
			strings.Join(alert.Flags, ","),
			strings.Join(alert.Channels, ","),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
