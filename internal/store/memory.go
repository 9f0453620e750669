package store

import (
	"context"
	"sync"
)

type cellKey struct{ x, y int }

type clientRow struct {
	ip        string
	port      int
	x, y      int
	timestamp int64
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	clients map[int64]*clientRow
	cells   map[cellKey]Cell
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[int64]*clientRow),
		cells:   make(map[cellKey]Cell),
	}
}

// NewClient implements Store.
func (m *MemoryStore) NewClient(ctx context.Context, ip string, port int, ts int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	m.nextID++
	m.clients[m.nextID] = &clientRow{ip: ip, port: port, timestamp: ts}
	return m.nextID, nil
}

// SetText implements Store.
func (m *MemoryStore) SetText(ctx context.Context, e Edit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.cells[cellKey{e.X, e.Y}] = Cell{
		X:         e.X,
		Y:         e.Y,
		C:         copyChar(e.C),
		ClientID:  e.ClientID,
		Timestamp: e.Timestamp,
	}
	m.moveCursor(e)
	return nil
}

// UpdateCursor implements Store.
func (m *MemoryStore) UpdateCursor(ctx context.Context, e Edit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.moveCursor(e)
	return nil
}

func (m *MemoryStore) moveCursor(e Edit) {
	if c, ok := m.clients[e.ClientID]; ok {
		c.x, c.y, c.timestamp = e.X, e.Y, e.Timestamp
	}
}

// ChangesSince implements Store.
func (m *MemoryStore) ChangesSince(ctx context.Context, since *int64) ([]Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	var out []Cell
	for _, c := range m.cells {
		if since != nil && c.Timestamp < *since {
			continue
		}
		c.C = copyChar(c.C)
		out = append(out, c)
	}
	sortCells(out)
	return out, nil
}

// Cursor implements CursorReader.
func (m *MemoryStore) Cursor(ctx context.Context, id int64) (Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return Cursor{}, ErrUnknownClient
	}
	return Cursor{ClientID: id, IP: c.ip, Port: c.port, X: c.x, Y: c.y, Timestamp: c.timestamp}, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
