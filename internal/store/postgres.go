package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS client (
		id BIGSERIAL PRIMARY KEY,
		ip TEXT NOT NULL,
		port INTEGER NOT NULL,
		x INTEGER NOT NULL DEFAULT 0,
		y INTEGER NOT NULL DEFAULT 0,
		"timestamp" BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cell (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		c TEXT,
		client_id BIGINT,
		"timestamp" BIGINT NOT NULL,
		PRIMARY KEY (x, y)
	)`,
	`CREATE INDEX IF NOT EXISTS cell_timestamp ON cell ("timestamp")`,
}

// PostgresStore is a PostgreSQL store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool. Call Migrate before use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// NewClient implements Store.
func (s *PostgresStore) NewClient(ctx context.Context, ip string, port int, ts int64) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO client (ip, port, "timestamp") VALUES ($1, $2, $3) RETURNING id`,
		ip, port, ts,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: new client: %w", err)
	}
	return id, nil
}

// SetText implements Store.
func (s *PostgresStore) SetText(ctx context.Context, e Edit) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cell (x, y, c, client_id, "timestamp")
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (x, y) DO UPDATE SET
				c = EXCLUDED.c,
				client_id = EXCLUDED.client_id,
				"timestamp" = EXCLUDED."timestamp"
		`, e.X, e.Y, e.C, e.ClientID, e.Timestamp); err != nil {
			return fmt.Errorf("store: set text: %w", err)
		}
		return s.moveCursor(ctx, tx, e)
	})
}

// UpdateCursor implements Store.
func (s *PostgresStore) UpdateCursor(ctx context.Context, e Edit) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.moveCursor(ctx, s.pool, e)
}

// pgExecer is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) moveCursor(ctx context.Context, db pgExecer, e Edit) error {
	if _, err := db.Exec(ctx,
		`UPDATE client SET x = $1, y = $2, "timestamp" = $3 WHERE id = $4`,
		e.X, e.Y, e.Timestamp, e.ClientID); err != nil {
		return fmt.Errorf("store: update cursor: %w", err)
	}
	return nil
}

// ChangesSince implements Store.
func (s *PostgresStore) ChangesSince(ctx context.Context, since *int64) ([]Cell, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	query := `SELECT x, y, c, client_id, "timestamp" FROM cell`
	var args []any
	if since != nil {
		query += ` WHERE "timestamp" >= $1`
		args = append(args, *since)
	}
	query += ` ORDER BY "timestamp", y, x`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: changes: %w", err)
	}
	defer rows.Close()

	var cells []Cell
	for rows.Next() {
		var (
			cell     Cell
			clientID *int64
		)
		if err := rows.Scan(&cell.X, &cell.Y, &cell.C, &clientID, &cell.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan cell: %w", err)
		}
		if clientID != nil {
			cell.ClientID = *clientID
		}
		cells = append(cells, cell)
	}
	return cells, rows.Err()
}

// Cursor implements CursorReader.
func (s *PostgresStore) Cursor(ctx context.Context, id int64) (Cursor, error) {
	cur := Cursor{ClientID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT ip, port, x, y, "timestamp" FROM client WHERE id = $1`, id,
	).Scan(&cur.IP, &cur.Port, &cur.X, &cur.Y, &cur.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cursor{}, ErrUnknownClient
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("store: cursor: %w", err)
	}
	return cur, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if !s.closed.Swap(true) {
		s.pool.Close()
	}
	return nil
}
