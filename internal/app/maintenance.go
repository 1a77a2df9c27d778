package app

import (
	"context"
	"fmt"
	"time"

	"listing-radar/internal/service"
)

// Rescore re-evaluates every active listing from stored state.
func (a *App) Rescore(ctx context.Context, opts service.RescoreOptions) error {
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

	if opts.DryRun {
		a.Logger.Warn().Msg("rescore dry-run: evaluations will not be written")
	}
	summary, err := svc.Rescore(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "processed: %d\nscored: %d\ninsufficient data: %d\nfailed: %d\n",
		summary.Processed, summary.Scored, summary.Insufficient, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d listings failed to rescore; check the logs", summary.Failed)
	}
	return nil
}

// Sweep runs one stale-listing sweep immediately.
func (a *App) Sweep(ctx context.Context) error {
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

	return svc.Sweep(ctx, time.Now().UTC())
}
