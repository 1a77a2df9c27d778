package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// ErrCoolingDown is returned when the same listing state was announced recently.
var ErrCoolingDown = errors.New("alerting: notification cooling down")

// DispatcherOptions throttle outbound notifications.
type DispatcherOptions struct {
	Cooldown      time.Duration
	RatePerMinute int
}

// Dispatcher fans a notification out to every configured channel, dropping
// repeats inside the cooldown window and pacing deliveries.
type Dispatcher struct {
	notifiers []Notifier
	sent      *cache.Cache
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewDispatcher builds a dispatcher over notifiers.
func NewDispatcher(notifiers []Notifier, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
	if opts.Cooldown > 0 {
		d.sent = cache.New(opts.Cooldown, 2*opts.Cooldown)
	}
	if opts.RatePerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), opts.RatePerMinute)
	}
	return d
}

// Channels lists the configured channel names.
func (d *Dispatcher) Channels() []string {
	return lo.Map(d.notifiers, func(n Notifier, _ int) string { return n.Name() })
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.notifiers) > 0
}

// Dispatch delivers note and returns the channels that accepted it. Errors
// from individual channels are joined; one failing channel does not stop
// the others.
func (d *Dispatcher) Dispatch(ctx context.Context, note Notification) ([]string, error) {
	if !d.Enabled() {
		return nil, nil
	}

	key := fmt.Sprintf("%s|%s|%s", note.ListingID, note.Price.String(), note.Label)
	if d.sent != nil {
		if _, found := d.sent.Get(key); found {
			return nil, ErrCoolingDown
		}
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for notification slot: %w", err)
		}
	}

	var (
		delivered []string
		errs      []error
	)
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			d.logger.Error().Err(err).Str("channel", n.Name()).Str("listing_id", note.ListingID).Msg("notification failed")
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		delivered = append(delivered, n.Name())
	}

	if len(delivered) > 0 && d.sent != nil {
		d.sent.SetDefault(key, struct{}{})
	}
	return delivered, errors.Join(errs...)
}
