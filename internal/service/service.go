package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"listing-radar/internal/alerting"
	"listing-radar/internal/config"
	"listing-radar/internal/engine"
	"listing-radar/internal/listing"
	"listing-radar/internal/metrics"
	"listing-radar/internal/pricing"
	"listing-radar/internal/scheduler"
	"listing-radar/internal/scoring"
	"listing-radar/internal/storage"
	"listing-radar/internal/taxonomy"
)

// ErrQueueFull is returned by TryEnqueue when the writer is saturated.
var ErrQueueFull = errors.New("service: observation queue full")

// Deps bundles the collaborators of a Service. Scheduler, AlertStore,
// Dispatcher and Metrics are optional.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Classifier *taxonomy.Classifier
	Normalizer *pricing.Normalizer
	Evaluator  *engine.Evaluator
	Store      storage.ListingStore
	AlertStore storage.AlertStore
	Dispatcher *alerting.Dispatcher
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Result reports what happened to one observation. Decision is nil when the
// peer sample was too small.
type Result struct {
	Listing  storage.Listing     `json:"listing"`
	Prior    *storage.Listing    `json:"prior,omitempty"`
	Change   alerting.ChangeType `json:"change,omitempty"`
	Decision *engine.Decision    `json:"decision"`
	Notified []string            `json:"notified,omitempty"`
}

// Service orchestrates tracking, evaluation, persistence and alerting. It is
// the single writer of listing state.
type Service struct {
	scheduler  *scheduler.Scheduler
	classifier *taxonomy.Classifier
	normalizer *pricing.Normalizer
	evaluator  *engine.Evaluator
	store      storage.ListingStore
	alertStore storage.AlertStore
	dispatcher *alerting.Dispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	queue          chan listing.Observation
	staleAfter     time.Duration
	alertRetention time.Duration
	locker         storage.AdvisoryLocker
	lockKey        int64
}

// New constructs the listing service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := deps.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	queueSize := cfg.Ingest.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}

	return &Service{
		scheduler:      deps.Scheduler,
		classifier:     deps.Classifier,
		normalizer:     deps.Normalizer,
		evaluator:      deps.Evaluator,
		store:          deps.Store,
		alertStore:     deps.AlertStore,
		dispatcher:     deps.Dispatcher,
		metrics:        deps.Metrics,
		logger:         logger.With().Str("component", "service").Logger(),
		now:            now,
		queue:          make(chan listing.Observation, queueSize),
		staleAfter:     cfg.Engine.StaleAfter,
		alertRetention: cfg.Alerting.Retention,
		locker:         locker,
		lockKey:        cfg.Scheduler.AdvisoryLockKey,
	}
}

// Enqueue hands obs to the writer, blocking until there is room or ctx ends.
func (s *Service) Enqueue(ctx context.Context, obs listing.Observation) error {
	select {
	case s.queue <- obs:
		s.trackQueue()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue hands obs to the writer without blocking.
func (s *Service) TryEnqueue(obs listing.Observation) error {
	select {
	case s.queue <- obs:
		s.trackQueue()
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the observation queue and, when a scheduler is configured,
// sweeps stale listings on its schedule. It returns when ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler != nil {
		go func() {
			if err := s.scheduler.Run(ctx, s.Sweep); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("scheduler stopped")
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obs := <-s.queue:
			s.trackQueue()
			if _, err := s.HandleObservation(ctx, obs); err != nil {
				s.logger.Warn().Err(err).Str("listing_id", obs.ID).Msg("observation dropped")
			}
		}
	}
}

// HandleObservation tracks obs, evaluates it against its peers, records the
// decision and notifies when the listing is new or its price moved.
func (s *Service) HandleObservation(ctx context.Context, obs listing.Observation) (*Result, error) {
	obs = obs.Normalize()
	if err := obs.Validate(); err != nil {
		s.count(metrics.OutcomeRejected)
		return nil, err
	}

	tax := s.classifier.Classify(obs.Title)
	normalized, err := s.normalizer.Normalize(obs.Price, obs.Currency)
	if err != nil {
		s.count(metrics.OutcomeRejected)
		return nil, fmt.Errorf("%w: %w", listing.ErrInvalidObservation, err)
	}
	price := normalized.InexactFloat64()
	now := s.now()

	var velocity pricing.Velocity
	prior, saved, err := s.store.UpsertListing(ctx, obs.ID, func(prior *storage.Listing) (storage.Listing, error) {
		next := storage.Listing{
			ID:           obs.ID,
			FirstSeen:    now,
			InitialPrice: price,
		}
		if prior != nil {
			next = *prior
			velocity = pricing.ComputeVelocity(&pricing.History{FirstSeen: prior.FirstSeen, InitialPrice: prior.InitialPrice}, price, now)
			if !prior.Price.Equal(obs.Price) || prior.Currency != obs.Currency {
				next.PriceChanges++
			}
		}
		next.Title = obs.Title
		next.URL = obs.URL
		next.Category = tax.Category
		next.Brand = tax.Brand
		next.Tier = string(tax.Tier)
		next.ClusterKey = tax.ClusterKey
		next.Price = obs.Price
		next.Currency = obs.Currency
		next.NormalizedPrice = price
		next.LastSeen = now
		next.Velocity = velocity.PerHour
		next.Active = true
		return next, nil
	})
	if err != nil {
		s.count(metrics.OutcomeFailed)
		return nil, fmt.Errorf("upsert listing %s: %w", obs.ID, err)
	}

	res := &Result{Listing: saved, Prior: prior, Change: changeOf(prior, saved)}

	decision, err := s.evaluator.Evaluate(ctx, engine.Signals{Taxonomy: tax, NormalizedPrice: price, Velocity: velocity})
	if err != nil {
		if errors.Is(err, engine.ErrInsufficientData) {
			s.count(metrics.OutcomeInsufficient)
			s.logger.Debug().Err(err).Str("listing_id", obs.ID).Msg("not enough peers to score")
			if err := s.store.RecordEvaluation(ctx, obs.ID, nil); err != nil {
				return res, fmt.Errorf("clear evaluation %s: %w", obs.ID, err)
			}
			res.Listing.Evaluation = nil
			return res, nil
		}
		s.count(metrics.OutcomeFailed)
		return res, fmt.Errorf("evaluate %s: %w", obs.ID, err)
	}
	res.Decision = decision

	ev := evaluationOf(decision, now)
	if err := s.store.RecordEvaluation(ctx, obs.ID, ev); err != nil {
		s.count(metrics.OutcomeFailed)
		return res, fmt.Errorf("record evaluation %s: %w", obs.ID, err)
	}
	res.Listing.Evaluation = ev
	s.observe(decision)

	s.logger.Info().
		Str("listing_id", obs.ID).
		Str("cluster", tax.ClusterKey).
		Int("score", decision.Score).
		Str("label", string(decision.Label)).
		Strs("flags", flagStrings(decision.Flags)).
		Float64("z_score", decision.Z).
		Msg("listing evaluated")

	if res.Change != "" && alerting.ShouldNotify(decision.Label, decision.Flags) {
		res.Notified = s.notify(ctx, res, now)
	}
	return res, nil
}

func (s *Service) notify(ctx context.Context, res *Result, now time.Time) []string {
	if !s.dispatcher.Enabled() {
		return nil
	}
	d := res.Decision
	l := res.Listing
	note := alerting.Notification{
		ListingID:   l.ID,
		Title:       l.Title,
		URL:         l.URL,
		Category:    l.Category,
		Brand:       l.Brand,
		Price:       l.Price,
		Currency:    l.Currency,
		Change:      res.Change,
		Score:       d.Score,
		Label:       d.Label,
		Flags:       d.Flags,
		Explanation: d.Explanation,
		Z:           d.Z,
		PricePoints: d.Components.Price,
		PeerMedian:  d.Stats.Median,
		Velocity:    d.Velocity,
		BaseUnit:    s.normalizer.Base(),
		EvaluatedAt: now,
	}
	if res.Change == alerting.ChangePrice {
		old := res.Prior.Price
		note.OldPrice = &old
	}

	delivered, err := s.dispatcher.Dispatch(ctx, note)
	switch {
	case errors.Is(err, alerting.ErrCoolingDown):
		s.notified("cooldown")
		return nil
	case err != nil:
		s.notified("failed")
		s.logger.Error().Err(err).Str("listing_id", l.ID).Msg("failed to dispatch notification")
	}
	if len(delivered) == 0 {
		return nil
	}
	s.notified("sent")

	if s.alertStore != nil {
		record := storage.AlertRecord{
			ID:        uuid.NewString(),
			ListingID: l.ID,
			Label:     string(d.Label),
			Score:     d.Score,
			Flags:     flagStrings(d.Flags),
			Channels:  delivered,
			CreatedAt: now,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("listing_id", l.ID).Msg("failed to persist alert record")
		}
	}
	return delivered
}

// Sweep deactivates listings not seen since bucket minus the stale window
// and prunes alert records past their retention.
func (s *Service) Sweep(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip sweep because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if s.alertStore != nil && s.alertRetention > 0 {
		if err := s.alertStore.DeleteAlertsBefore(ctx, bucket.Add(-s.alertRetention)); err != nil {
			s.logger.Error().Err(err).Msg("failed to prune alert records")
		}
	}

	if s.staleAfter <= 0 {
		return nil
	}
	cutoff := bucket.Add(-s.staleAfter)
	n, err := s.store.DeactivateStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("deactivate stale listings: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DeactivatedTotal.Add(float64(n))
	}
	s.logger.Info().Time("cutoff", cutoff).Int64("deactivated", n).Msg("stale sweep complete")
	return nil
}

// RescoreOptions narrow a rescore run.
type RescoreOptions struct {
	Category string
	DryRun   bool
}

// RescoreSummary counts the outcome of a rescore run.
type RescoreSummary struct {
	Processed    int
	Scored       int
	Insufficient int
	Failed       int
}

// Rescore re-evaluates active listings from their stored state. Velocity is
// measured at each listing's last sighting, so repeated runs agree.
func (s *Service) Rescore(ctx context.Context, opts RescoreOptions) (RescoreSummary, error) {
	var summary RescoreSummary

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return summary, err
	}
	if !proceed {
		return summary, errors.New("rescore skipped: advisory lock held elsewhere")
	}
	if unlock != nil {
		defer unlock()
	}

	listings, err := s.store.ListListings(ctx, storage.ListFilter{Category: opts.Category, ActiveOnly: true})
	if err != nil {
		return summary, fmt.Errorf("list listings: %w", err)
	}

	now := s.now()
	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++

		decision, err := s.evaluator.Evaluate(ctx, engine.Signals{
			Taxonomy:        taxonomyOf(l),
			NormalizedPrice: l.NormalizedPrice,
			Velocity:        storedVelocity(l),
		})
		var ev *storage.Evaluation
		switch {
		case errors.Is(err, engine.ErrInsufficientData):
			summary.Insufficient++
		case err != nil:
			summary.Failed++
			s.logger.Error().Err(err).Str("listing_id", l.ID).Msg("rescore failed")
			continue
		default:
			summary.Scored++
			ev = evaluationOf(decision, now)
		}

		if opts.DryRun {
			continue
		}
		if err := s.store.RecordEvaluation(ctx, l.ID, ev); err != nil {
			summary.Failed++
			s.logger.Error().Err(err).Str("listing_id", l.ID).Msg("failed to record rescore")
		}
	}

	s.logger.Info().
		Int("processed", summary.Processed).
		Int("scored", summary.Scored).
		Int("insufficient", summary.Insufficient).
		Int("failed", summary.Failed).
		Bool("dry_run", opts.DryRun).
		Msg("rescore complete")
	return summary, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.ObservationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) observe(d *engine.Decision) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObservationsTotal.WithLabelValues(metrics.OutcomeScored).Inc()
	s.metrics.DecisionsTotal.WithLabelValues(string(d.Label)).Inc()
	s.metrics.ScoreHistogram.Observe(float64(d.Score))
	for _, f := range d.Flags {
		s.metrics.FlagsTotal.WithLabelValues(string(f)).Inc()
	}
}

func (s *Service) notified(result string) {
	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(result).Inc()
	}
}

func (s *Service) trackQueue() {
	if s.metrics != nil {
		s.metrics.QueueDepth.Set(float64(len(s.queue)))
	}
}

func changeOf(prior *storage.Listing, saved storage.Listing) alerting.ChangeType {
	switch {
	case prior == nil:
		return alerting.ChangeNew
	case !prior.Price.Equal(saved.Price) || prior.Currency != saved.Currency:
		return alerting.ChangePrice
	default:
		return ""
	}
}

func evaluationOf(d *engine.Decision, at time.Time) *storage.Evaluation {
	return &storage.Evaluation{
		Score:       d.Score,
		Label:       string(d.Label),
		Flags:       flagStrings(d.Flags),
		Explanation: d.Explanation,
		Z:           d.Z,
		EvaluatedAt: at,
	}
}

func taxonomyOf(l storage.Listing) taxonomy.Result {
	return taxonomy.Result{
		Category:   l.Category,
		Brand:      l.Brand,
		Tier:       taxonomy.Tier(l.Tier),
		ClusterKey: l.ClusterKey,
	}
}

// storedVelocity reproduces the velocity observed at the last sighting.
func storedVelocity(l storage.Listing) pricing.Velocity {
	if !l.LastSeen.After(l.FirstSeen) && l.PriceChanges == 0 {
		return pricing.Velocity{}
	}
	return pricing.ComputeVelocity(&pricing.History{FirstSeen: l.FirstSeen, InitialPrice: l.InitialPrice}, l.NormalizedPrice, l.LastSeen)
}

func flagStrings(flags []scoring.Flag) []string {
	return lo.Map(flags, func(f scoring.Flag, _ int) string { return string(f) })
}
