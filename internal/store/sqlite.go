package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite schema. The cell primary key makes SetText an upsert.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS client (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ip TEXT NOT NULL,
		port INTEGER NOT NULL,
		x INTEGER NOT NULL DEFAULT 0,
		y INTEGER NOT NULL DEFAULT 0,
		"timestamp" INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cell (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		c TEXT,
		client_id INTEGER,
		"timestamp" INTEGER NOT NULL,
		PRIMARY KEY (x, y)
	)`,
	`CREATE INDEX IF NOT EXISTS cell_timestamp ON cell ("timestamp")`,
}

// SQLStore is a database/sql backed store using SQLite syntax.
type SQLStore struct {
	db     *sql.DB
	closed atomic.Bool
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// migrates its schema. ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDSN)
	}

	dsn := path
	if path != ":memory:" {
		q := url.Values{}
		q.Set("_busy_timeout", "5000")
		q.Set("_journal_mode", "WAL")
		dsn = "file:" + path + "?" + q.Encode()
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open SQLite handle. Call Migrate before use.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// NewClient implements Store.
func (s *SQLStore) NewClient(ctx context.Context, ip string, port int, ts int64) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO client (ip, port, "timestamp") VALUES (?, ?, ?)`,
		ip, port, ts)
	if err != nil {
		return 0, fmt.Errorf("store: new client: %w", err)
	}
	return res.LastInsertId()
}

// SetText implements Store.
func (s *SQLStore) SetText(ctx context.Context, e Edit) error {
	if s.closed.Load() {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: set text: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cell (x, y, c, client_id, "timestamp")
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (x, y) DO UPDATE SET
			c = excluded.c,
			client_id = excluded.client_id,
			"timestamp" = excluded."timestamp"
	`, e.X, e.Y, nullString(e.C), e.ClientID, e.Timestamp); err != nil {
		return fmt.Errorf("store: set text: %w", err)
	}
	if err := s.moveCursor(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateCursor implements Store.
func (s *SQLStore) UpdateCursor(ctx context.Context, e Edit) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.moveCursor(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) moveCursor(ctx context.Context, db execer, e Edit) error {
	if _, err := db.ExecContext(ctx,
		`UPDATE client SET x = ?, y = ?, "timestamp" = ? WHERE id = ?`,
		e.X, e.Y, e.Timestamp, e.ClientID); err != nil {
		return fmt.Errorf("store: update cursor: %w", err)
	}
	return nil
}

// ChangesSince implements Store.
func (s *SQLStore) ChangesSince(ctx context.Context, since *int64) ([]Cell, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	query := `SELECT x, y, c, client_id, "timestamp" FROM cell`
	var args []any
	if since != nil {
		query += ` WHERE "timestamp" >= ?`
		args = append(args, *since)
	}
	query += ` ORDER BY "timestamp", y, x`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: changes: %w", err)
	}
	defer rows.Close()

	var cells []Cell
	for rows.Next() {
		var (
			cell     Cell
			c        sql.NullString
			clientID sql.NullInt64
		)
		if err := rows.Scan(&cell.X, &cell.Y, &c, &clientID, &cell.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan cell: %w", err)
		}
		if c.Valid {
			cell.C = &c.String
		}
		cell.ClientID = clientID.Int64
		cells = append(cells, cell)
	}
	return cells, rows.Err()
}

// Cursor implements CursorReader.
func (s *SQLStore) Cursor(ctx context.Context, id int64) (Cursor, error) {
	cur := Cursor{ClientID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT ip, port, x, y, "timestamp" FROM client WHERE id = ?`, id,
	).Scan(&cur.IP, &cur.Port, &cur.X, &cur.Y, &cur.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{}, ErrUnknownClient
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("store: cursor: %w", err)
	}
	return cur, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func nullString(c *string) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *c, Valid: true}
}
