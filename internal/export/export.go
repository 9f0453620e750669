// Package export writes JSON snapshots of the canvas to object storage or
// a local directory, once or on an interval.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-dev/textcanvas/pkg/canvas"
	"github.com/vango-dev/textcanvas/pkg/protocol"
)

// ErrNoSink is returned by New when no destination is configured.
var ErrNoSink = errors.New("export: no sink")

// ContentType of every snapshot object.
const ContentType = "application/json"

// Sink stores snapshot objects by key.
type Sink interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Snapshot is the JSON document written for each export.
type Snapshot struct {
	TakenAt time.Time     `json:"taken_at"`
	Cells   int           `json:"cells"`
	Data    protocol.Grid `json:"data"`
}

// Exporter snapshots a canvas into a Sink.
type Exporter struct {
	canvas *canvas.Canvas
	sink   Sink
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithPrefix sets the key prefix (e.g., "snapshots/").
func WithPrefix(prefix string) Option {
	return func(e *Exporter) {
		e.prefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTime replaces the clock used for keys and TakenAt.
func WithTime(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Exporter.
func New(cv *canvas.Canvas, sink Sink, opts ...Option) (*Exporter, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	e := &Exporter{
		canvas: cv,
		sink:   sink,
		now:    time.Now,
		logger: slog.Default().With("component", "export"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Key returns the object key for a snapshot taken at t.
func (e *Exporter) Key(t time.Time) string {
	prefix := e.prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + "canvas-" + t.UTC().Format("20060102T150405.000Z") + ".json"
}

// Export writes one snapshot and returns its key.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	taken := e.now()
	grid := e.canvas.ReadAll(false)
	body, err := json.Marshal(Snapshot{TakenAt: taken.UTC(), Cells: grid.Cells(), Data: grid})
	if err != nil {
		return "", fmt.Errorf("export: encode snapshot: %w", err)
	}

	key := e.Key(taken)
	if err := e.sink.Put(ctx, key, body, ContentType); err != nil {
		return "", fmt.Errorf("export: put %s: %w", key, err)
	}
	e.logger.Info("snapshot exported", "key", key, "cells", grid.Cells(), "bytes", len(body))
	return key, nil
}

// Run exports every interval until ctx is done. Failed exports are logged
// and retried on the next interval.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Export(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("snapshot export failed", "error", err)
			}
		}
	}
}
