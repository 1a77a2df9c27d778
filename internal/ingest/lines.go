package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// maxLineBytes bounds a single JSON-lines record.
const maxLineBytes = 1 << 20

// LineStats summarises a JSON-lines read.
type LineStats struct {
	Lines     int
	Delivered int
	Malformed int
	Failed    int
}

// ReadLines decodes one observation per line of r and hands each to sink.
// Blank lines and lines starting with '#' are skipped. Malformed lines and
// sink errors are logged and counted; only read errors abort.
func ReadLines(ctx context.Context, r io.Reader, sink Sink, logger zerolog.Logger) (LineStats, error) {
	var stats LineStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		obs, err := Decode(line)
		if err != nil {
			stats.Malformed++
			logger.Warn().Err(err).Int("line", stats.Lines).Msg("skipping malformed observation")
			continue
		}
		if err := sink.Enqueue(ctx, obs); err != nil {
			stats.Failed++
			logger.Warn().Err(err).Int("line", stats.Lines).Str("listing_id", obs.ID).Msg("observation not accepted")
			continue
		}
		stats.Delivered++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read observations: %w", err)
	}
	return stats, nil
}
