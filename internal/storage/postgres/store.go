package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aaveCustody/internal/model"
)

//go:embed schema.sql
var schema string

// Store provides Postgres persistence for custody events and account snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutEventBatch inserts custody events, ignoring ids that already exist.
func (s *Store) PutEventBatch(ctx context.Context, events []model.CustodyEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		var amount *string
		if e.Amount != "" {
			a := e.Amount
			amount = &a
		}
		batch.Queue(`
			INSERT INTO custody_events (id, kind, module, caller, token, amount, emitted_at)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
			ON CONFLICT (id) DO NOTHING
		`,
			e.ID,
			e.Kind,
			e.Module,
			e.Caller,
			e.Token,
			amount,
			e.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertAccountSnapshot records a risk snapshot for user at takenAt.
func (s *Store) InsertAccountSnapshot(ctx context.Context, user string, takenAt time.Time, data model.AccountData) error {
	view := data.View(user)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_snapshots (
			user_address, taken_at, total_collateral_base, total_debt_base, available_borrows_base,
			current_liquidation_threshold, ltv, health_factor
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric)
		ON CONFLICT (user_address, taken_at) DO NOTHING
	`,
		view.User,
		takenAt,
		view.TotalCollateralBase,
		view.TotalDebtBase,
		view.AvailableBorrowsBase,
		view.CurrentLiquidationThreshold,
		view.LTV,
		view.HealthFactor,
	)
	return err
}

// ListEvents returns up to limit events emitted at or after since, oldest first.
func (s *Store) ListEvents(ctx context.Context, since time.Time, limit int) ([]model.CustodyEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, kind, module, caller, token, COALESCE(amount::text, ''), emitted_at
		FROM custody_events
		WHERE emitted_at >= $1
		ORDER BY emitted_at, id
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.CustodyEvent
	for rows.Next() {
		var e model.CustodyEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.Module, &e.Caller, &e.Token, &e.Amount, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
