package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"

	"listing-radar/internal/ingest"
	"listing-radar/internal/listing"
	"listing-radar/internal/service"
)

// Evaluate tracks and scores observations immediately, bypassing the queue,
// and prints one row per observation.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, closeNotifiers, err := a.newService(store, nil, nil)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	out := newResultWriter(a.Out, opts.JSON)
	handle := ingest.SinkFunc(func(ctx context.Context, obs listing.Observation) error {
		res, err := svc.HandleObservation(ctx, obs)
		if err != nil {
			return err
		}
		return out.write(res)
	})

	if opts.File == "" {
		if err := handle(ctx, opts.Observation); err != nil {
			return err
		}
		return out.flush()
	}

	var r io.Reader = os.Stdin
	if opts.File != "-" {
		f, err := os.Open(opts.File)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	stats, err := ingest.ReadLines(ctx, r, handle, a.Logger)
	if err != nil {
		return err
	}
	if err := out.flush(); err != nil {
		return err
	}
	a.Logger.Info().
		Int("lines", stats.Lines).
		Int("evaluated", stats.Delivered).
		Int("malformed", stats.Malformed).
		Int("failed", stats.Failed).
		Msg("evaluation complete")
	if stats.Delivered == 0 && stats.Malformed+stats.Failed > 0 {
		return errors.New("no observation could be evaluated")
	}
	return nil
}

type resultWriter struct {
	asJSON bool
	enc    *jsoniter.Encoder
	tw     *tabwriter.Writer
	header bool
}

func newResultWriter(w io.Writer, asJSON bool) *resultWriter {
	if asJSON {
		return &resultWriter{asJSON: true, enc: jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)}
	}
	return &resultWriter{tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
}

func (w *resultWriter) write(res *service.Result) error {
	if w.asJSON {
		return w.enc.Encode(res)
	}
	if !w.header {
		fmt.Fprintln(w.tw, "ID\tCategory\tCluster\tPrice\tScore\tLabel\tZ\tFlags\tNotified\tExplanation")
		w.header = true
	}

	l := res.Listing
	if res.Decision == nil {
		fmt.Fprintf(w.tw, "%s\t%s\t%s\t%s %s\t-\tinsufficient data\t-\t\t\t\n",
			l.ID, l.Category, l.ClusterKey, l.Price.String(), l.Currency)
		return nil
	}
	d := res.Decision
	flags := make([]string, len(d.Flags))
	for i, f := range d.Flags {
		flags[i] = string(f)
	}
	fmt.Fprintf(w.tw, "%s\t%s\t%s\t%s %s\t%d\t%s\t%.3f\t%s\t%s\t%s\n",
		l.ID, l.Category, l.ClusterKey, l.Price.String(), l.Currency,
		d.Score, d.Label, d.Z, strings.Join(flags, ","), strings.Join(res.Notified, ","), sanitizeInline(d.Explanation))
	return nil
}

func (w *resultWriter) flush() error {
	if w.tw != nil {
		return w.tw.Flush()
	}
	return nil
}
