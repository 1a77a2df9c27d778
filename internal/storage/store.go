package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"listing-radar/internal/config"
	"listing-radar/internal/engine"
	"listing-radar/internal/taxonomy"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrNotFound is returned when a listing id is unknown.
	ErrNotFound = errors.New("storage: listing not found")
)

// UpsertFunc receives the prior state of a listing (nil on first sighting)
// and returns the state to persist. It runs inside the store transaction.
type UpsertFunc func(prior *Listing) (Listing, error)

// ListingStore persists tracked listings and serves peer samples.
type ListingStore interface {
	engine.PeerSource
	UpsertListing(ctx context.Context, id string, fn UpsertFunc) (prior *Listing, saved Listing, err error)
	GetListing(ctx context.Context, id string) (Listing, error)
	RecordEvaluation(ctx context.Context, id string, ev *Evaluation) error
	ListListings(ctx context.Context, filter ListFilter) ([]Listing, error)
	DeactivateStale(ctx context.Context, seenBefore time.Time) (int64, error)
	Deactivate(ctx context.Context, id string) error
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is a complete storage backend.
type Store interface {
	ListingStore
	AlertStore
	Init(ctx context.Context) error
	Close()
}

// Open connects the backend selected by cfg.Driver and prepares its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		pool, perr := NewPool(ctx, cfg)
		if perr != nil {
			return nil, perr
		}
		store = NewPostgresStore(pool)
	case "sqlite", "":
		store, err = NewSQLiteStore(cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// peerClause returns the extra column to filter on for a peer query, or "".
func peerClause(q engine.PeerQuery) (column, value string) {
	switch {
	case q.ClusterKey != "" && q.ClusterKey != taxonomy.GenericCluster:
		return "cluster_key", q.ClusterKey
	case q.Brand != "" && q.Brand != taxonomy.UnknownBrand:
		return "brand", q.Brand
	default:
		return "", ""
	}
}

// listQuery renders the WHERE/ORDER/LIMIT tail of a listing query using
// placeholder to format the n-th bind parameter.
func listQuery(filter ListFilter, placeholder func(n int) string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}

	if filter.ActiveOnly {
		conds = append(conds, "active")
	}
	if filter.Category != "" {
		add("category = %s", filter.Category)
	}
	if filter.Brand != "" {
		add("brand = %s", filter.Brand)
	}
	if filter.Label != "" {
		add("label = %s", filter.Label)
	}
	if len(filter.Labels) > 0 {
		marks := make([]string, 0, len(filter.Labels))
		for _, label := range filter.Labels {
			args = append(args, label)
			marks = append(marks, placeholder(len(args)))
		}
		conds = append(conds, "label IN ("+strings.Join(marks, ", ")+")")
	}

	var b strings.Builder
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY COALESCE(score, -1) DESC, last_seen DESC, id")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		b.WriteString(" LIMIT " + placeholder(len(args)))
	}
	return b.String(), args
}
