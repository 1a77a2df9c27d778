package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"listing-radar/internal/config"
	"listing-radar/internal/engine"
)

const (
	pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS listings (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    category         TEXT NOT NULL,
    brand            TEXT NOT NULL,
    tier             TEXT NOT NULL,
    cluster_key      TEXT NOT NULL,
    url              TEXT NOT NULL DEFAULT '',
    price            NUMERIC NOT NULL,
    currency         TEXT NOT NULL,
    normalized_price DOUBLE PRECISION NOT NULL,
    first_seen       TIMESTAMPTZ NOT NULL,
    last_seen        TIMESTAMPTZ NOT NULL,
    initial_price    DOUBLE PRECISION NOT NULL,
    price_changes    INTEGER NOT NULL DEFAULT 0,
    velocity         DOUBLE PRECISION NOT NULL DEFAULT 0,
    active           BOOLEAN NOT NULL DEFAULT TRUE,
    score            INTEGER,
    label            TEXT,
    flags            TEXT[],
    explanation      TEXT,
    z_score          DOUBLE PRECISION,
    evaluated_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_listings_cluster ON listings (category, cluster_key) WHERE active;
CREATE INDEX IF NOT EXISTS idx_listings_brand ON listings (category, brand) WHERE active;
CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings (last_seen);
CREATE TABLE IF NOT EXISTS alerts (
    id         UUID PRIMARY KEY,
    listing_id TEXT NOT NULL REFERENCES listings (id),
    label      TEXT NOT NULL,
    score      INTEGER NOT NULL,
    flags      TEXT[] NOT NULL DEFAULT '{}',
    channels   TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts (created_at);`

	pgListingColumns = `id, title, category, brand, tier, cluster_key, url, price::text, currency,
        normalized_price, first_seen, last_seen, initial_price, price_changes, velocity, active,
        score, label, flags, explanation, z_score, evaluated_at`

	pgSelectListingForUpdateSQL = `SELECT ` + pgListingColumns + ` FROM listings WHERE id = $1 FOR UPDATE;`

	pgSelectListingSQL = `SELECT ` + pgListingColumns + ` FROM listings WHERE id = $1;`

	pgUpsertListingSQL = `INSERT INTO listings (
        id, title, category, brand, tier, cluster_key, url, price, currency,
        normalized_price, first_seen, last_seen, initial_price, price_changes, velocity, active
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
    )
    ON CONFLICT (id) DO UPDATE
    SET
        title            = EXCLUDED.title,
        category         = EXCLUDED.category,
        brand            = EXCLUDED.brand,
        tier             = EXCLUDED.tier,
        cluster_key      = EXCLUDED.cluster_key,
        url              = EXCLUDED.url,
        price            = EXCLUDED.price,
        currency         = EXCLUDED.currency,
        normalized_price = EXCLUDED.normalized_price,
        last_seen        = EXCLUDED.last_seen,
        price_changes    = EXCLUDED.price_changes,
        velocity         = EXCLUDED.velocity,
        active           = EXCLUDED.active;`

	pgRecordEvaluationSQL = `UPDATE listings
    SET score = $2, label = $3, flags = $4, explanation = $5, z_score = $6, evaluated_at = $7
    WHERE id = $1;`

	pgDeactivateStaleSQL = `UPDATE listings SET active = FALSE WHERE active AND last_seen < $1;`

	pgDeactivateSQL = `UPDATE listings SET active = FALSE WHERE id = $1;`

	pgInsertAlertSQL = `INSERT INTO alerts (id, listing_id, label, score, flags, channels)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id::text, listing_id, label, score, flags, channels, created_at;`

	pgListRecentAlertsSQL = `SELECT id::text, listing_id, label, score, flags, channels, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	pgDeleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// PostgresStore keeps listings and alerts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Init creates tables and indexes when missing.
func (s *PostgresStore) Init(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock also dies with the connection
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertListing reads the listing under a row lock, lets fn derive the next
// state, and writes it back in the same transaction.
func (s *PostgresStore) UpsertListing(ctx context.Context, id string, fn UpsertFunc) (*Listing, Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, Listing{}, err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, Listing{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prior *Listing
	existing, scanErr := scanPgListing(tx.QueryRow(ctx, pgSelectListingForUpdateSQL, id))
	switch {
	case scanErr == nil:
		prior = &existing
	case errors.Is(scanErr, pgx.ErrNoRows):
	default:
		return nil, Listing{}, fmt.Errorf("load listing %s: %w", id, scanErr)
	}

	next, err := fn(prior)
	if err != nil {
		return prior, Listing{}, err
	}
	next.ID = id

	if _, err := tx.Exec(ctx, pgUpsertListingSQL,
		next.ID,
		next.Title,
		next.Category,
		next.Brand,
		next.Tier,
		next.ClusterKey,
		next.URL,
		next.Price.String(),
		next.Currency,
		next.NormalizedPrice,
		next.FirstSeen.UTC(),
		next.LastSeen.UTC(),
		next.InitialPrice,
		next.PriceChanges,
		next.Velocity,
		next.Active,
	); err != nil {
		return prior, Listing{}, fmt.Errorf("upsert listing %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return prior, Listing{}, fmt.Errorf("commit upsert: %w", err)
	}
	if prior != nil {
		next.Evaluation = prior.Evaluation
	}
	return prior, next, nil
}

// GetListing loads a listing by id.
func (s *PostgresStore) GetListing(ctx context.Context, id string) (Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return Listing{}, err
	}
	l, err := scanPgListing(pool.QueryRow(ctx, pgSelectListingSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, ErrNotFound
	}
	if err != nil {
		return Listing{}, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

// PeerPrices returns normalised prices of active peers.
func (s *PostgresStore) PeerPrices(ctx context.Context, q engine.PeerQuery) ([]float64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := `SELECT normalized_price FROM listings WHERE active AND category = $1`
	args := []any{q.Category}
	if column, value := peerClause(q); column != "" {
		query += " AND " + column + " = $2"
		args = append(args, value)
	}
	query += " ORDER BY id;"

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query peer prices: %w", err)
	}
	prices, err := pgx.CollectRows(rows, pgx.RowTo[float64])
	if err != nil {
		return nil, fmt.Errorf("scan peer prices: %w", err)
	}
	return prices, nil
}

// RecordEvaluation stores the latest decision; nil clears it.
func (s *PostgresStore) RecordEvaluation(ctx context.Context, id string, ev *Evaluation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var (
		score       any
		label       any
		flags       any
		explanation any
		z           any
		at          any
	)
	if ev != nil {
		score, label, explanation, z, at = ev.Score, ev.Label, ev.Explanation, ev.Z, ev.EvaluatedAt.UTC()
		flags = nonNil(ev.Flags)
	}

	tag, err := pool.Exec(ctx, pgRecordEvaluationSQL, id, score, label, flags, explanation, z, at)
	if err != nil {
		return fmt.Errorf("record evaluation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListListings returns listings matching filter, best score first.
func (s *PostgresStore) ListListings(ctx context.Context, filter ListFilter) ([]Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	tail, args := listQuery(filter, func(n int) string { return "$" + strconv.Itoa(n) })
	rows, err := pool.Query(ctx, `SELECT `+pgListingColumns+` FROM listings`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	listings := make([]Listing, 0)
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return listings, nil
}

// DeactivateStale marks listings not seen since seenBefore as inactive.
func (s *PostgresStore) DeactivateStale(ctx context.Context, seenBefore time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, pgDeactivateStaleSQL, seenBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("deactivate stale listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Deactivate marks a single listing inactive.
func (s *PostgresStore) Deactivate(ctx context.Context, id string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, pgDeactivateSQL, id)
	if err != nil {
		return fmt.Errorf("deactivate listing %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertAlert persists an alert emission.
func (s *PostgresStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, pgInsertAlertSQL,
		alert.ID,
		alert.ListingID,
		alert.Label,
		alert.Score,
		nonNil(alert.Flags),
		nonNil(alert.Channels),
	)

	var rec AlertRecord
	if err := row.Scan(&rec.ID, &rec.ListingID, &rec.Label, &rec.Score, &rec.Flags, &rec.Channels, &rec.CreatedAt); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *PostgresStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, pgListRecentAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(&rec.ID, &rec.ListingID, &rec.Label, &rec.Score, &rec.Flags, &rec.Channels, &rec.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *PostgresStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgDeleteAlertsBeforeSQL, olderThan.UTC()); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

func scanPgListing(row pgx.Row) (Listing, error) {
	var (
		l           Listing
		priceStr    string
		score       sql.NullInt32
		label       sql.NullString
		flags       []string
		explanation sql.NullString
		z           sql.NullFloat64
		evaluatedAt *time.Time
	)

	if err := row.Scan(
		&l.ID,
		&l.Title,
		&l.Category,
		&l.Brand,
		&l.Tier,
		&l.ClusterKey,
		&l.URL,
		&priceStr,
		&l.Currency,
		&l.NormalizedPrice,
		&l.FirstSeen,
		&l.LastSeen,
		&l.InitialPrice,
		&l.PriceChanges,
		&l.Velocity,
		&l.Active,
		&score,
		&label,
		&flags,
		&explanation,
		&z,
		&evaluatedAt,
	); err != nil {
		return Listing{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return Listing{}, fmt.Errorf("parse price: %w", err)
	}
	l.Price = price

	if evaluatedAt != nil && score.Valid {
		l.Evaluation = &Evaluation{
			Score:       int(score.Int32),
			Label:       label.String,
			Flags:       nonNil(flags),
			Explanation: explanation.String,
			Z:           z.Float64,
			EvaluatedAt: *evaluatedAt,
		}
	}
	return l, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var (
	_ Store          = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
