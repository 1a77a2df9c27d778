package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"listing-radar/internal/config"
	"listing-radar/internal/listing"
	"listing-radar/internal/service"
	"listing-radar/internal/storage"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "app.db") + "?_pragma=busy_timeout(5000)"
	cfg.Alerting.Enabled = false

	var out bytes.Buffer
	a := NewApp(cfg, zerolog.Nop())
	a.Out = &out
	return a, &out
}

func writeObservations(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "observations.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	return path
}

func monitorLines() []string {
	return []string{
		`{"id":"p1","title":"Asus ROG 240hz","price":9500,"currency":"TRY"}`,
		`{"id":"p2","title":"Asus ROG 240hz","price":9500,"currency":"TRY"}`,
		`{"id":"p3","title":"Asus ROG 240hz","price":10000,"currency":"TRY"}`,
		`{"id":"p4","title":"Asus ROG 240hz","price":10000,"currency":"TRY"}`,
		`{"id":"p5","title":"Asus ROG 240hz","price":10000,"currency":"TRY"}`,
		`{"id":"p6","title":"Asus ROG 240hz","price":10500,"currency":"TRY"}`,
		`{"id":"p7","title":"Asus ROG 240hz","price":10500,"currency":"TRY"}`,
		`{"id":"p8","title":"Asus ROG 240hz","price":11000,"currency":"TRY"}`,
		`{"id":"p9","title":"Asus ROG 240hz","price":12000,"currency":"TRY"}`,
		`{"id":"1100","title":"Asus ROG Swift 240hz monitör","price":8000,"currency":"TRY"}`,
	}
}

func TestEvaluateFileThenShowAndExport(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(t)

	path := writeObservations(t, append(monitorLines(), `broken`)...)
	require.NoError(t, a.Evaluate(ctx, EvaluateOptions{File: path}))
	require.Contains(t, out.String(), "insufficient data")
	require.Contains(t, out.String(), "Good Deal")

	out.Reset()
	require.NoError(t, a.Show(ctx, ShowOptions{Limit: 3}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[1], "1100"), out.String())

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "listings.csv")
	pngPath := filepath.Join(dir, "out", "scatter.png")
	require.NoError(t, a.Export(ctx, ExportOptions{CSVPath: csvPath, PNGPath: pngPath}))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 11)
	require.Equal(t, "id", records[0][0])

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestEvaluateSingleObservationJSON(t *testing.T) {
	a, out := newTestApp(t)
	err := a.Evaluate(context.Background(), EvaluateOptions{
		JSON: true,
		Observation: listing.Observation{
			ID: "solo", Title: "Logitech G Pro wireless mouse", Price: decimal.NewFromInt(2500), Currency: "try",
		},
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), `"id":"solo"`)
	require.Contains(t, out.String(), `"decision":null`)
}

func TestEvaluateRejectsInvalidObservation(t *testing.T) {
	a, _ := newTestApp(t)
	err := a.Evaluate(context.Background(), EvaluateOptions{
		Observation: listing.Observation{ID: "bad", Title: "Asus", Price: decimal.NewFromInt(10), Currency: "EUR"},
	})
	require.ErrorIs(t, err, listing.ErrInvalidObservation)
}

func TestRescoreAndSweep(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(t)
	require.NoError(t, a.Evaluate(ctx, EvaluateOptions{File: writeObservations(t, monitorLines()...)}))

	out.Reset()
	require.NoError(t, a.Rescore(ctx, service.RescoreOptions{}))
	require.Contains(t, out.String(), "processed: 10")
	require.Contains(t, out.String(), "scored: 10")

	// freshly seen listings survive a sweep
	require.NoError(t, a.Sweep(ctx))
	store, closeStore, err := a.openStore(ctx)
	require.NoError(t, err)
	defer closeStore()
	active, err := store.ListListings(ctx, storage.ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 10)
}

func TestDownsampleListings(t *testing.T) {
	listings := make([]storage.Listing, 10)
	for i := range listings {
		listings[i] = storage.Listing{ID: string(rune('a' + i)), LastSeen: time.Unix(int64(i), 0)}
	}
	got := downsampleListings(listings, 4)
	require.Len(t, got, 4)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "j", got[3].ID)
	require.Len(t, downsampleListings(listings, 20), 10)
	require.Len(t, downsampleListings(listings, 1), 1)
}
