package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL. All monetary values are
// stored as NUMERIC for exact decimal precision.
//
// Expected schema:
//
//	CREATE TABLE pool_events (
//	    id         TEXT PRIMARY KEY,
//	    kind       TEXT NOT NULL,
//	    asset      TEXT NOT NULL DEFAULT '',
//	    amount_a   NUMERIC NOT NULL,
//	    amount_b   NUMERIC NOT NULL,
//	    fee        NUMERIC NOT NULL,
//	    debt_ratio NUMERIC NOT NULL,
//	    ts         TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed journal.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pool_events (id, kind, asset, amount_a, amount_b, fee, debt_ratio, ts)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
		e.ID, e.Kind, e.Asset,
		e.AmountA.String(), e.AmountB.String(), e.Fee.String(), e.DebtRatio.String(),
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, asset, amount_a::TEXT, amount_b::TEXT, fee::TEXT, debt_ratio::TEXT, ts
		 FROM pool_events ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) EventsByKind(ctx context.Context, kind string) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, asset, amount_a::TEXT, amount_b::TEXT, fee::TEXT, debt_ratio::TEXT, ts
		 FROM pool_events WHERE kind = $1 ORDER BY ts DESC`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows rowScanner) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var amountA, amountB, fee, ratio string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Asset,
			&amountA, &amountB, &fee, &ratio, &e.Timestamp); err != nil {
			return nil, err
		}
		e.AmountA, _ = decimal.NewFromString(amountA)
		e.AmountB, _ = decimal.NewFromString(amountB)
		e.Fee, _ = decimal.NewFromString(fee)
		e.DebtRatio, _ = decimal.NewFromString(ratio)
		events = append(events, e)
	}
	return events, rows.Err()
}
