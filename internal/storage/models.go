package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is the persisted state of a tracked listing.
type Listing struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Category        string          `json:"category"`
	Brand           string          `json:"brand"`
	Tier            string          `json:"tier"`
	ClusterKey      string          `json:"cluster_key"`
	URL             string          `json:"url"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	NormalizedPrice float64         `json:"normalized_price"`
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
	InitialPrice    float64         `json:"initial_price"`
	PriceChanges    int             `json:"price_changes"`
	Velocity        float64         `json:"velocity"`
	Active          bool            `json:"active"`
	Evaluation      *Evaluation     `json:"evaluation,omitempty"`
}

// Evaluation is the most recent decision recorded against a listing.
type Evaluation struct {
	Score       int       `json:"score"`
	Label       string    `json:"label"`
	Flags       []string  `json:"flags"`
	Explanation string    `json:"explanation"`
	Z           float64   `json:"z_score"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// AlertRecord captures a delivered notification for auditing.
type AlertRecord struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	Label     string    `json:"label"`
	Score     int       `json:"score"`
	Flags     []string  `json:"flags"`
	Channels  []string  `json:"channels"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows ListListings. Empty fields do not filter.
type ListFilter struct {
	Category   string
	Brand      string
	Label      string
	Labels     []string
	ActiveOnly bool
	Limit      int
}
