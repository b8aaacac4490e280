package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgx used by PGStore.
// Satisfied by *pgxpool.Pool and pgx.Tx; narrow interface for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PGStore keeps the journal in Postgres.
type PGStore struct {
	db DBTX
}

func NewPGStore(db DBTX) *PGStore {
	return &PGStore{db: db}
}

// Connect opens and pings a pool for databaseURL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect journal db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}
	return pool, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS dispatch_journal (
	id           UUID PRIMARY KEY,
	order_id     TEXT        NOT NULL,
	order_number TEXT        NOT NULL DEFAULT '',
	event        TEXT        NOT NULL,
	actor        TEXT        NOT NULL DEFAULT '',
	token_digest TEXT        NOT NULL DEFAULT '',
	detail       TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS dispatch_journal_order_idx ON dispatch_journal (order_id, created_at);
`

// EnsureSchema creates the journal table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create dispatch_journal: %w", err)
	}
	return nil
}

func (s *PGStore) Record(ctx context.Context, e Entry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO dispatch_journal (id, order_id, order_number, event, actor, token_digest, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.OrderID, e.OrderNumber, e.Event, e.Actor, e.TokenDigest, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *PGStore) ListByOrder(ctx context.Context, orderID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, order_id, order_number, event, actor, token_digest, detail, created_at
		 FROM dispatch_journal WHERE order_id = $1 ORDER BY created_at`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.OrderID, &e.OrderNumber, &e.Event, &e.Actor, &e.TokenDigest, &e.Detail, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan journal entries: %w", err)
	}
	return entries, nil
}
