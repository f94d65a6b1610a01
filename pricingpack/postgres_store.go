package pricingpack

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kestrelfi/patternrunner/core"
)

// PostgresStore is the durable, transactionally-updated Pricing Pack Store:
// a database-backed table where supersede runs in a single transaction and
// readers use snapshot isolation. It uses database/sql with the pgx stdlib
// driver and raw SQL (BeginTx/ExecContext/Commit) rather than an ORM.
type PostgresStore struct {
	db     *sql.DB
	logger core.Logger
}

// OpenPostgresStore opens a connection pool against dsn and verifies
// connectivity.
func OpenPostgresStore(ctx context.Context, dsn string, logger core.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening pricing pack store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging pricing pack store: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Schema is the DDL for the pricing_packs table and its audit log, applied
// once via an external migration tool; the engine does not apply it itself.
const Schema = `
CREATE TABLE IF NOT EXISTS pricing_packs (
	id                    TEXT PRIMARY KEY,
	asof_date             DATE NOT NULL,
	hash                  TEXT NOT NULL,
	sources               TEXT[] NOT NULL,
	superseded_by         TEXT,
	is_fresh              BOOLEAN NOT NULL DEFAULT true,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	reconciliation_passed BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_pricing_packs_asof ON pricing_packs (asof_date);

CREATE TABLE IF NOT EXISTS pricing_pack_audit (
	id            BIGSERIAL PRIMARY KEY,
	old_pack_id   TEXT NOT NULL,
	new_pack_id   TEXT NOT NULL,
	reason        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) GetPack(ctx context.Context, packID string) (*Pack, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, asof_date, hash, sources, COALESCE(superseded_by, ''), is_fresh, created_at, reconciliation_passed
		FROM pricing_packs WHERE id = $1`, packID)
	p, err := scanPack(row)
	if err == sql.ErrNoRows {
		return nil, core.NewEngineError(core.KindPackNotFound, "pricingpack.GetPack",
			fmt.Sprintf("pack %q not found", packID), core.ErrPackNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pricingpack.GetPack: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetLatest(ctx context.Context, asOfDate time.Time) (*Pack, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, asof_date, hash, sources, COALESCE(superseded_by, ''), is_fresh, created_at, reconciliation_passed
		FROM pricing_packs
		WHERE asof_date = $1 AND superseded_by IS NULL`, asOfDate)
	p, err := scanPack(row)
	if err == sql.ErrNoRows {
		return nil, core.NewEngineError(core.KindPackNotFound, "pricingpack.GetLatest",
			fmt.Sprintf("no pack for date %s", asOfDate.Format("2006-01-02")), core.ErrNoPackForDate)
	}
	if err != nil {
		return nil, fmt.Errorf("pricingpack.GetLatest: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CreatePack(ctx context.Context, asOfDate time.Time, sources []string, hash string) (*Pack, error) {
	id := fmt.Sprintf("PP_%s", asOfDate.Format("2006-01-02"))

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM pricing_packs WHERE asof_date = $1 AND superseded_by IS NULL)`,
		asOfDate).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("pricingpack.CreatePack: checking existing pack: %w", err)
	}
	if exists {
		return nil, core.NewEngineError(core.KindInvalidInput, "pricingpack.CreatePack",
			fmt.Sprintf("non-superseded pack already exists for %s", asOfDate.Format("2006-01-02")),
			core.ErrDuplicatePack)
	}

	createdAt := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pricing_packs (id, asof_date, hash, sources, is_fresh, created_at, reconciliation_passed)
		VALUES ($1, $2, $3, $4, true, $5, false)`,
		id, asOfDate, hash, sources, createdAt)
	if err != nil {
		return nil, fmt.Errorf("pricingpack.CreatePack: inserting pack: %w", err)
	}

	return &Pack{ID: id, AsOfDate: asOfDate, Hash: hash, Sources: sources, IsFresh: true, CreatedAt: createdAt}, nil
}

// Supersede runs the three-part atomic operation inside a
// single transaction, preserving linearizability on the
// store.
func (s *PostgresStore) Supersede(ctx context.Context, oldPackID string, newSources []string, newHash, reason string) (*Pack, *Pack, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("pricingpack.Supersede: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var asOfDate time.Time
	var hash string
	var supersededBy sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT asof_date, hash, superseded_by FROM pricing_packs WHERE id = $1 FOR UPDATE`, oldPackID).
		Scan(&asOfDate, &hash, &supersededBy)
	if err == sql.ErrNoRows {
		return nil, nil, core.NewEngineError(core.KindPackNotFound, "pricingpack.Supersede",
			fmt.Sprintf("pack %q not found", oldPackID), core.ErrPackNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("pricingpack.Supersede: locking old pack: %w", err)
	}
	if supersededBy.Valid && supersededBy.String != "" {
		return nil, nil, core.NewEngineError(core.KindInvalidInput, "pricingpack.Supersede",
			fmt.Sprintf("pack %q already superseded by %q", oldPackID, supersededBy.String), core.ErrAlreadySuperseded)
	}
	if hash == newHash {
		return nil, nil, core.NewEngineError(core.KindInvalidInput, "pricingpack.Supersede",
			"restated pack has identical hash to predecessor", core.ErrIdenticalPackHash)
	}

	var depth int
	if err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM pricing_packs WHERE id LIKE $1 || '_D%'`, oldPackID[:len("PP_0000-00-00")]).
		Scan(&depth); err != nil {
		return nil, nil, fmt.Errorf("pricingpack.Supersede: counting chain depth: %w", err)
	}
	newID := fmt.Sprintf("PP_%s_D%d", asOfDate.Format("2006-01-02"), depth+1)
	createdAt := time.Now()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pricing_packs (id, asof_date, hash, sources, is_fresh, created_at, reconciliation_passed)
		VALUES ($1, $2, $3, $4, true, $5, false)`,
		newID, asOfDate, newHash, newSources, createdAt); err != nil {
		return nil, nil, fmt.Errorf("pricingpack.Supersede: inserting new pack: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE pricing_packs SET superseded_by = $1 WHERE id = $2`, newID, oldPackID); err != nil {
		return nil, nil, fmt.Errorf("pricingpack.Supersede: marking old pack superseded: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pricing_pack_audit (old_pack_id, new_pack_id, reason) VALUES ($1, $2, $3)`,
		oldPackID, newID, reason); err != nil {
		return nil, nil, fmt.Errorf("pricingpack.Supersede: writing audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("pricingpack.Supersede: commit: %w", err)
	}

	old := &Pack{ID: oldPackID, AsOfDate: asOfDate, Hash: hash, SupersededBy: newID, CreatedAt: createdAt}
	newPack := &Pack{ID: newID, AsOfDate: asOfDate, Hash: newHash, Sources: newSources, IsFresh: true, CreatedAt: createdAt}
	return old, newPack, nil
}

func (s *PostgresStore) ListChain(ctx context.Context, rootPackID string) ([]string, error) {
	var chain []string
	cur := rootPackID
	for cur != "" {
		chain = append(chain, cur)
		var next sql.NullString
		err := s.db.QueryRowContext(ctx, `SELECT superseded_by FROM pricing_packs WHERE id = $1`, cur).Scan(&next)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pricingpack.ListChain: %w", err)
		}
		if !next.Valid {
			break
		}
		cur = next.String
	}
	return chain, nil
}

func scanPack(row *sql.Row) (*Pack, error) {
	var p Pack
	var sources []string
	if err := row.Scan(&p.ID, &p.AsOfDate, &p.Hash, &sources, &p.SupersededBy, &p.IsFresh, &p.CreatedAt, &p.ReconciliationPassed); err != nil {
		return nil, err
	}
	p.Sources = sources
	return &p, nil
}
