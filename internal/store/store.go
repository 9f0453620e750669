// Package store persists canvas cells and client cursors.
//
// Backends:
//   - SQLStore: SQLite through database/sql and mattn/go-sqlite3
//   - PostgresStore: PostgreSQL through a pgx connection pool
//   - RedisStore: Redis hashes plus a sorted set of change timestamps
//   - MemoryStore: in-process, for tests and throwaway canvases
//
// Open picks a backend from a DSN. Traced wraps any Store with
// OpenTelemetry spans.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedDSN is returned by Open for an unknown DSN scheme.
var ErrUnsupportedDSN = errors.New("store: unsupported DSN")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// ErrUnknownClient is returned by Cursor for an id never handed out.
var ErrUnknownClient = errors.New("store: unknown client")

// Store is a persistence backend for the canvas. Implementations must be
// safe for concurrent use.
type Store interface {
	// NewClient records a connection and returns its numeric identity.
	NewClient(ctx context.Context, ip string, port int, ts int64) (int64, error)

	// SetText writes one cell and moves the client's cursor to it.
	// A nil character is an explicit erase and is stored as such.
	SetText(ctx context.Context, e Edit) error

	// UpdateCursor moves the client's cursor without touching cells.
	UpdateCursor(ctx context.Context, e Edit) error

	// ChangesSince returns the cells written at or after since, or every
	// cell when since is nil.
	ChangesSince(ctx context.Context, since *int64) ([]Cell, error)

	// Close releases any resources held by the store.
	Close() error
}

// Edit is one client action at a position.
type Edit struct {
	ClientID  int64
	X, Y      int
	C         *string
	Timestamp int64
}

// Cell is a persisted cell value.
type Cell struct {
	X, Y      int
	C         *string
	ClientID  int64
	Timestamp int64
}

// Cursor is a client's registration and last cursor position.
type Cursor struct {
	ClientID  int64
	IP        string
	Port      int
	X, Y      int
	Timestamp int64
}

// CursorReader is implemented by every backend in this package.
type CursorReader interface {
	Cursor(ctx context.Context, id int64) (Cursor, error)
}

// Open opens the backend selected by the DSN scheme:
//
//	memory:
//	sqlite:<path>            (sqlite::memory: for an in-memory database)
//	postgres://...           (also postgresql://)
//	redis://host:port/db     (also rediss://)
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "memory:" || dsn == "memory":
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return OpenRedis(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
}

// sortCells orders cells by timestamp, then row, then column.
func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
}

func copyChar(c *string) *string {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
