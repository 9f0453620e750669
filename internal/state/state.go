// Package state connects the socket server to a persistence backend and
// the in-memory canvas.
//
// Every edit goes to the store first. Each tick the server asks for the
// changes since its watermark; State reads them back from the store,
// replays them into the canvas, and hands over the canvas's pending view.
// Going through the store keeps several server processes sharing one
// database in sync with each other.
package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vango-dev/textcanvas/internal/store"
	"github.com/vango-dev/textcanvas/pkg/canvas"
	"github.com/vango-dev/textcanvas/pkg/protocol"
	"github.com/vango-dev/textcanvas/pkg/server"
)

// State implements server.Handler on top of a store.Store.
type State struct {
	ctx    context.Context
	store  store.Store
	canvas *canvas.Canvas
	sender server.Sender
	logger *slog.Logger
	now    func() int64

	mu  sync.RWMutex
	ids map[string]int64

	// replayed holds the last change written into the canvas per cell.
	// Only touched from GetData.
	replayed map[cellKey]replay
}

type cellKey struct {
	x, y int
}

type replay struct {
	ts int64
	c  *string
}

func (r replay) matches(cell store.Cell) bool {
	if r.ts != cell.Timestamp {
		return false
	}
	if r.c == nil || cell.C == nil {
		return r.c == nil && cell.C == nil
	}
	return *r.c == *cell.C
}

// Option configures a State.
type Option func(*State)

// WithClock replaces the timestamp source used for new clients and edits.
func WithClock(now func() int64) Option {
	return func(s *State) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a State and loads everything already persisted into cv.
// ctx bounds every store call made by the returned State.
func New(ctx context.Context, st store.Store, cv *canvas.Canvas, sender server.Sender, logger *slog.Logger, opts ...Option) *State {
	if logger == nil {
		logger = slog.Default()
	}
	if cv == nil {
		cv = canvas.New()
	}
	s := &State{
		ctx:    ctx,
		store:  st,
		canvas: cv,
		sender: sender,
		logger: logger.With("component", "state"),
		now:    server.Now,
		ids:    make(map[string]int64),

		replayed: make(map[cellKey]replay),
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded := s.GetData(nil)
	s.logger.Debug("canvas loaded", "cells", loaded.Cells())
	return s
}

// SetSender sets the sender used by OnConnect. It exists because the
// server needs its handler before it can be passed here.
func (s *State) SetSender(sender server.Sender) {
	s.sender = sender
}

// Canvas returns the canvas this State writes into.
func (s *State) Canvas() *canvas.Canvas {
	return s.canvas
}

// ClientID returns the store id registered for a remote address.
func (s *State) ClientID(remote string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[remote]
	return id, ok
}

// OnConnect registers the client with the store and sends it the full grid.
func (s *State) OnConnect(c *server.Client) {
	remote := c.RemoteAddr()
	s.logger.Info("connected", "remote", remote)

	id, err := s.store.NewClient(s.ctx, c.Addr, c.Port, s.now())
	if err != nil {
		s.logger.Error("register client", "remote", remote, "error", err)
	} else {
		s.mu.Lock()
		s.ids[remote] = id
		s.mu.Unlock()
	}

	if s.sender == nil {
		return
	}
	if err := s.sender.Send(c, protocol.NewUpdate(s.canvas.ReadAll(false))); err != nil {
		s.logger.Warn("send initial grid", "remote", remote, "error", err)
	}
}

// OnData applies one client message. A message carrying "c" writes the
// cell (null erases it); one without only moves the cursor.
func (s *State) OnData(c *server.Client, payload string) {
	remote := c.RemoteAddr()
	s.logger.Debug("received", "remote", remote, "payload", payload)

	msg, err := protocol.ParseClientMessage(payload)
	if err != nil {
		s.logger.Warn("dropping message", "remote", remote, "error", err)
		return
	}

	id, ok := s.ClientID(remote)
	if !ok {
		s.logger.Warn("dropping message from unregistered client", "remote", remote)
		return
	}

	edit := store.Edit{
		ClientID:  id,
		X:         msg.X,
		Y:         msg.Y,
		C:         msg.C,
		Timestamp: s.now(),
	}
	if msg.IsEdit() {
		err = s.store.SetText(s.ctx, edit)
	} else {
		err = s.store.UpdateCursor(s.ctx, edit)
	}
	if err != nil {
		s.logger.Error("persist message", "remote", remote, "error", err)
	}
}

// GetData replays the store's changes since the watermark into the canvas.
// With a nil watermark it returns the whole grid; otherwise it drains the
// canvas's pending view. A failed query contributes nothing.
//
// The watermark is inclusive, so a change stamped in the same hundredth as
// the previous watermark comes back on the next call. A change identical to
// the last one replayed for its cell is skipped and not broadcast again.
func (s *State) GetData(since *int64) protocol.Grid {
	cells, err := s.store.ChangesSince(s.ctx, since)
	if err != nil {
		s.logger.Error("load changes", "error", err)
	}
	for _, cell := range cells {
		key := cellKey{cell.X, cell.Y}
		if prev, ok := s.replayed[key]; ok && prev.matches(cell) {
			continue
		}
		s.replayed[key] = replay{ts: cell.Timestamp, c: cell.C}
		s.canvas.Write(cell.X, cell.Y, cell.C)
	}

	if since != nil {
		for key, r := range s.replayed {
			if r.ts < *since {
				delete(s.replayed, key)
			}
		}
	}
	return s.canvas.ReadAll(since != nil)
}

var _ server.Handler = (*State)(nil)
