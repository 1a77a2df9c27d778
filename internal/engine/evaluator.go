package engine

import (
	"context"
	"errors"
	"fmt"

	"listing-radar/internal/pricing"
	"listing-radar/internal/scoring"
	"listing-radar/internal/stats"
	"listing-radar/internal/taxonomy"
)

// ErrInsufficientData means the peer sample was too small to score against.
var ErrInsufficientData = errors.New("engine: insufficient peer data")

const (
	ScopeCluster = "cluster"
	ScopeBrand   = "brand"
)

// PeerQuery selects the peer group of a listing. Stores filter on category
// and then on ClusterKey when it is set and not generic, otherwise on Brand
// when it is set and known.
type PeerQuery struct {
	Category   string
	Brand      string
	ClusterKey string
}

// PeerSource returns normalised prices of active listings.
type PeerSource interface {
	PeerPrices(ctx context.Context, q PeerQuery) ([]float64, error)
}

// Options tune the peer sample requirements.
type Options struct {
	MinClusterSample int
	MinSample        int
}

// DefaultOptions returns the reference sample thresholds.
func DefaultOptions() Options {
	return Options{MinClusterSample: 10, MinSample: 5}
}

// Signals are the per-listing inputs of an evaluation.
type Signals struct {
	Taxonomy        taxonomy.Result
	NormalizedPrice float64
	Velocity        pricing.Velocity
}

// Decision is the engine's verdict on one listing.
type Decision struct {
	Score           int                `json:"score"`
	Label           scoring.Label      `json:"label"`
	Z               float64            `json:"z_score"`
	Stats           stats.Robust       `json:"stats"`
	Flags           []scoring.Flag     `json:"flags"`
	Explanation     string             `json:"explanation"`
	Velocity        float64            `json:"velocity"`
	VelocityDefined bool               `json:"velocity_defined"`
	HoursOnMarket   float64            `json:"hours_on_market"`
	Components      scoring.Components `json:"components"`
	PeerScope       string             `json:"peer_scope"`
}

// HasFlag reports whether the decision carries f.
func (d *Decision) HasFlag(f scoring.Flag) bool {
	return scoring.HasFlag(d.Flags, f)
}

// Evaluator scores listings against their peer market.
type Evaluator struct {
	peers  PeerSource
	scorer *scoring.Scorer
	opts   Options
}

// NewEvaluator wires a peer source and scorer together.
func NewEvaluator(peers PeerSource, scorer *scoring.Scorer, opts Options) *Evaluator {
	if opts.MinSample < 2 {
		opts.MinSample = 2
	}
	return &Evaluator{peers: peers, scorer: scorer, opts: opts}
}

// Scorer returns the scorer in use.
func (e *Evaluator) Scorer() *scoring.Scorer {
	return e.scorer
}

// Evaluate reads the peer sample for sig and scores it. ErrInsufficientData
// is returned when even the brand-level sample is below MinSample.
func (e *Evaluator) Evaluate(ctx context.Context, sig Signals) (*Decision, error) {
	tax := sig.Taxonomy
	scope := ScopeCluster
	prices, err := e.peers.PeerPrices(ctx, PeerQuery{Category: tax.Category, Brand: tax.Brand, ClusterKey: tax.ClusterKey})
	if err != nil {
		return nil, fmt.Errorf("query cluster peers: %w", err)
	}

	if len(prices) < e.opts.MinClusterSample {
		scope = ScopeBrand
		prices, err = e.peers.PeerPrices(ctx, PeerQuery{Category: tax.Category, Brand: tax.Brand})
		if err != nil {
			return nil, fmt.Errorf("query brand peers: %w", err)
		}
	}

	if len(prices) < e.opts.MinSample {
		return nil, fmt.Errorf("%w: %d peers for %s/%s", ErrInsufficientData, len(prices), tax.Category, tax.Brand)
	}
	robust, ok := stats.Compute(prices)
	if !ok {
		return nil, ErrInsufficientData
	}

	z := robust.ModifiedZ(sig.NormalizedPrice)
	out := e.scorer.Score(scoring.Input{
		Z:             z,
		Tier:          tax.Tier,
		HoursOnMarket: sig.Velocity.HoursOnMarket,
		Velocity:      sig.Velocity.PerHour,
	})

	return &Decision{
		Score:           out.Score,
		Label:           out.Label,
		Z:               z,
		Stats:           robust,
		Flags:           out.Flags,
		Explanation:     out.Explanation,
		Velocity:        sig.Velocity.PerHour,
		VelocityDefined: sig.Velocity.Defined,
		HoursOnMarket:   sig.Velocity.HoursOnMarket,
		Components:      out.Components,
		PeerScope:       scope,
	}, nil
}
