package alerting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"listing-radar/internal/scoring"
)

// ChangeType says why a listing is being announced.
type ChangeType string

const (
	ChangeNew   ChangeType = "NEW"
	ChangePrice ChangeType = "PRICE_CHANGE"
)

// Notification carries a scored listing to delivery channels.
type Notification struct {
	ListingID   string           `json:"listing_id"`
	Title       string           `json:"title"`
	URL         string           `json:"url"`
	Category    string           `json:"category"`
	Brand       string           `json:"brand"`
	Price       decimal.Decimal  `json:"price"`
	Currency    string           `json:"currency"`
	OldPrice    *decimal.Decimal `json:"old_price,omitempty"`
	Change      ChangeType       `json:"change"`
	Score       int              `json:"score"`
	Label       scoring.Label    `json:"label"`
	Flags       []scoring.Flag   `json:"flags"`
	Explanation string           `json:"explanation"`
	Z           float64          `json:"z_score"`
	PricePoints float64          `json:"price_points"`
	PeerMedian  float64          `json:"peer_median"`
	Velocity    float64          `json:"velocity"`
	BaseUnit    string           `json:"base_currency"`
	EvaluatedAt time.Time        `json:"evaluated_at"`
}

// Notifier delivers notifications to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, note Notification) error
}

// ShouldNotify suppresses Neutral and Toxic verdicts unless the listing is
// panic selling.
func ShouldNotify(label scoring.Label, flags []scoring.Flag) bool {
	switch label {
	case scoring.LabelNeutral, scoring.LabelToxic:
		return scoring.HasFlag(flags, scoring.FlagPanicSell)
	}
	return true
}
