package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"listing-radar/internal/config"
	"listing-radar/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sqliteTime is fixed width so stored timestamps compare lexicographically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

const (
	sqliteListingColumns = `id, title, category, brand, tier, cluster_key, url, price, currency,
        normalized_price, first_seen, last_seen, initial_price, price_changes, velocity, active,
        score, label, flags, explanation, z_score, evaluated_at`

	sqliteUpsertListingSQL = `INSERT INTO listings (
        id, title, category, brand, tier, cluster_key, url, price, currency,
        normalized_price, first_seen, last_seen, initial_price, price_changes, velocity, active
    ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    ON CONFLICT (id) DO UPDATE
    SET
        title            = excluded.title,
        category         = excluded.category,
        brand            = excluded.brand,
        tier             = excluded.tier,
        cluster_key      = excluded.cluster_key,
        url              = excluded.url,
        price            = excluded.price,
        currency         = excluded.currency,
        normalized_price = excluded.normalized_price,
        last_seen        = excluded.last_seen,
        price_changes    = excluded.price_changes,
        velocity         = excluded.velocity,
        active           = excluded.active`
)

// SQLiteStore keeps listings and alerts in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database named by cfg.DSN.
func NewSQLiteStore(cfg config.DatabaseConfig) (*SQLiteStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = "file:listingradar.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer; serialise through one connection.
	db.SetMaxOpenConns(1)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Init creates tables and indexes when missing.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			id               TEXT PRIMARY KEY,
			title            TEXT NOT NULL,
			category         TEXT NOT NULL,
			brand            TEXT NOT NULL,
			tier             TEXT NOT NULL,
			cluster_key      TEXT NOT NULL,
			url              TEXT NOT NULL DEFAULT '',
			price            TEXT NOT NULL,
			currency         TEXT NOT NULL,
			normalized_price REAL NOT NULL,
			first_seen       TEXT NOT NULL,
			last_seen        TEXT NOT NULL,
			initial_price    REAL NOT NULL,
			price_changes    INTEGER NOT NULL DEFAULT 0,
			velocity         REAL NOT NULL DEFAULT 0,
			active           INTEGER NOT NULL DEFAULT 1,
			score            INTEGER,
			label            TEXT,
			flags            TEXT,
			explanation      TEXT,
			z_score          REAL,
			evaluated_at     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_cluster ON listings (category, cluster_key, active)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_brand ON listings (category, brand, active)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings (last_seen)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id         TEXT PRIMARY KEY,
			listing_id TEXT NOT NULL,
			label      TEXT NOT NULL,
			score      INTEGER NOT NULL,
			flags      TEXT NOT NULL,
			channels   TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}

// UpsertListing reads, derives and writes a listing inside one transaction.
func (s *SQLiteStore) UpsertListing(ctx context.Context, id string, fn UpsertFunc) (*Listing, Listing, error) {
	if s == nil || s.db == nil {
		return nil, Listing{}, ErrNotConfigured
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Listing{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prior *Listing
	existing, scanErr := scanSQLiteListing(tx.QueryRowContext(ctx, `SELECT `+sqliteListingColumns+` FROM listings WHERE id = ?`, id))
	switch {
	case scanErr == nil:
		prior = &existing
	case errors.Is(scanErr, sql.ErrNoRows):
	default:
		return nil, Listing{}, fmt.Errorf("load listing %s: %w", id, scanErr)
	}

	next, err := fn(prior)
	if err != nil {
		return prior, Listing{}, err
	}
	next.ID = id

	if _, err := tx.ExecContext(ctx, sqliteUpsertListingSQL,
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
		formatSQLiteTime(next.FirstSeen),
		formatSQLiteTime(next.LastSeen),
		next.InitialPrice,
		next.PriceChanges,
		next.Velocity,
		next.Active,
	); err != nil {
		return prior, Listing{}, fmt.Errorf("upsert listing %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return prior, Listing{}, fmt.Errorf("commit upsert: %w", err)
	}
	if prior != nil {
		next.Evaluation = prior.Evaluation
	}
	return prior, next, nil
}

// GetListing loads a listing by id.
func (s *SQLiteStore) GetListing(ctx context.Context, id string) (Listing, error) {
	if s == nil || s.db == nil {
		return Listing{}, ErrNotConfigured
	}
	l, err := scanSQLiteListing(s.db.QueryRowContext(ctx, `SELECT `+sqliteListingColumns+` FROM listings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Listing{}, ErrNotFound
	}
	if err != nil {
		return Listing{}, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

// PeerPrices returns normalised prices of active peers.
func (s *SQLiteStore) PeerPrices(ctx context.Context, q engine.PeerQuery) ([]float64, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	query := `SELECT normalized_price FROM listings WHERE active = 1 AND category = ?`
	args := []any{q.Category}
	if column, value := peerClause(q); column != "" {
		query += " AND " + column + " = ?"
		args = append(args, value)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query peer prices: %w", err)
	}
	defer rows.Close()

	prices := make([]float64, 0)
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan peer price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// RecordEvaluation stores the latest decision; nil clears it.
func (s *SQLiteStore) RecordEvaluation(ctx context.Context, id string, ev *Evaluation) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}

	var score, label, flags, explanation, z, at any
	if ev != nil {
		raw, err := json.Marshal(nonNil(ev.Flags))
		if err != nil {
			return fmt.Errorf("encode flags: %w", err)
		}
		score, label, flags, explanation, z, at = ev.Score, ev.Label, string(raw), ev.Explanation, ev.Z, formatSQLiteTime(ev.EvaluatedAt)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET score = ?, label = ?, flags = ?, explanation = ?, z_score = ?, evaluated_at = ? WHERE id = ?`,
		score, label, flags, explanation, z, at, id)
	if err != nil {
		return fmt.Errorf("record evaluation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListListings returns listings matching filter, best score first.
func (s *SQLiteStore) ListListings(ctx context.Context, filter ListFilter) ([]Listing, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	tail, args := listQuery(filter, func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteListingColumns+` FROM listings`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	listings := make([]Listing, 0)
	for rows.Next() {
		l, err := scanSQLiteListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// DeactivateStale marks listings not seen since seenBefore as inactive.
func (s *SQLiteStore) DeactivateStale(ctx context.Context, seenBefore time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotConfigured
	}
	res, err := s.db.ExecContext(ctx, `UPDATE listings SET active = 0 WHERE active = 1 AND last_seen < ?`, formatSQLiteTime(seenBefore))
	if err != nil {
		return 0, fmt.Errorf("deactivate stale listings: %w", err)
	}
	return res.RowsAffected()
}

// Deactivate marks a single listing inactive.
func (s *SQLiteStore) Deactivate(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	res, err := s.db.ExecContext(ctx, `UPDATE listings SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate listing %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertAlert persists an alert emission.
func (s *SQLiteStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	if s == nil || s.db == nil {
		return AlertRecord{}, ErrNotConfigured
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	alert.Flags = nonNil(alert.Flags)
	alert.Channels = nonNil(alert.Channels)

	flags, err := json.Marshal(alert.Flags)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("encode flags: %w", err)
	}
	channels, err := json.Marshal(alert.Channels)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("encode channels: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, listing_id, label, score, flags, channels, created_at) VALUES (?,?,?,?,?,?,?)`,
		alert.ID, alert.ListingID, alert.Label, alert.Score, string(flags), string(channels), formatSQLiteTime(alert.CreatedAt),
	); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	return alert, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, listing_id, label, score, flags, channels, created_at FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec                   AlertRecord
			flags, channels, when string
		)
		if err := rows.Scan(&rec.ID, &rec.ListingID, &rec.Label, &rec.Score, &flags, &channels, &when); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(flags), &rec.Flags); err != nil {
			return nil, fmt.Errorf("decode alert flags: %w", err)
		}
		if err := json.Unmarshal([]byte(channels), &rec.Channels); err != nil {
			return nil, fmt.Errorf("decode alert channels: %w", err)
		}
		if rec.CreatedAt, err = parseSQLiteTime(when); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

// DeleteAlertsBefore deletes historical alerts.
func (s *SQLiteStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, formatSQLiteTime(olderThan)); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteListing(row rowScanner) (Listing, error) {
	var (
		l                     Listing
		priceStr              string
		firstSeen, lastSeen   string
		active                int
		score                 sql.NullInt64
		label, flags, explain sql.NullString
		z                     sql.NullFloat64
		evaluatedAt           sql.NullString
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
		&firstSeen,
		&lastSeen,
		&l.InitialPrice,
		&l.PriceChanges,
		&l.Velocity,
		&active,
		&score,
		&label,
		&flags,
		&explain,
		&z,
		&evaluatedAt,
	); err != nil {
		return Listing{}, err
	}

	var err error
	if l.Price, err = decimal.NewFromString(priceStr); err != nil {
		return Listing{}, fmt.Errorf("parse price: %w", err)
	}
	if l.FirstSeen, err = parseSQLiteTime(firstSeen); err != nil {
		return Listing{}, err
	}
	if l.LastSeen, err = parseSQLiteTime(lastSeen); err != nil {
		return Listing{}, err
	}
	l.Active = active != 0

	if score.Valid && evaluatedAt.Valid {
		ev := &Evaluation{
			Score:       int(score.Int64),
			Label:       label.String,
			Flags:       []string{},
			Explanation: explain.String,
			Z:           z.Float64,
		}
		if flags.Valid && flags.String != "" {
			if err := json.Unmarshal([]byte(flags.String), &ev.Flags); err != nil {
				return Listing{}, fmt.Errorf("decode flags: %w", err)
			}
		}
		if ev.EvaluatedAt, err = parseSQLiteTime(evaluatedAt.String); err != nil {
			return Listing{}, err
		}
		l.Evaluation = ev
	}
	return l, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseSQLiteTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t.UTC(), nil
}

var _ Store = (*SQLiteStore)(nil)
