package store

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "textcanvas/store"

// TracedStore wraps a Store and records one span per call.
type TracedStore struct {
	next    Store
	tracer  trace.Tracer
	backend string
}

// TraceOption configures a TracedStore.
type TraceOption func(*TracedStore)

// WithTracerProvider uses tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TraceOption {
	return func(t *TracedStore) {
		t.tracer = tp.Tracer(defaultTracerName)
	}
}

// WithBackendName sets the db.system attribute. Default: derived from the
// wrapped type.
func WithBackendName(name string) TraceOption {
	return func(t *TracedStore) {
		t.backend = name
	}
}

// Traced wraps next with OpenTelemetry spans.
func Traced(next Store, opts ...TraceOption) *TracedStore {
	t := &TracedStore{
		next:    next,
		tracer:  otel.Tracer(defaultTracerName),
		backend: backendName(next),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func backendName(s Store) string {
	switch s.(type) {
	case *SQLStore:
		return "sqlite"
	case *PostgresStore:
		return "postgresql"
	case *RedisStore:
		return "redis"
	case *MemoryStore:
		return "memory"
	default:
		return "other"
	}
}

// Unwrap returns the wrapped store.
func (t *TracedStore) Unwrap() Store {
	return t.next
}

func (t *TracedStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", t.backend),
		attribute.String("db.operation", op),
	)
	return t.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func editAttrs(e Edit) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("canvas.client_id", e.ClientID),
		attribute.Int("canvas.x", e.X),
		attribute.Int("canvas.y", e.Y),
	}
}

// NewClient implements Store.
func (t *TracedStore) NewClient(ctx context.Context, ip string, port int, ts int64) (int64, error) {
	ctx, span := t.start(ctx, "new_client",
		attribute.String("net.peer.ip", ip),
		attribute.Int("net.peer.port", port),
	)
	id, err := t.next.NewClient(ctx, ip, port, ts)
	span.SetAttributes(attribute.Int64("canvas.client_id", id))
	finish(span, err)
	return id, err
}

// SetText implements Store.
func (t *TracedStore) SetText(ctx context.Context, e Edit) error {
	ctx, span := t.start(ctx, "set_text", editAttrs(e)...)
	err := t.next.SetText(ctx, e)
	finish(span, err)
	return err
}

// UpdateCursor implements Store.
func (t *TracedStore) UpdateCursor(ctx context.Context, e Edit) error {
	ctx, span := t.start(ctx, "update_cursor", editAttrs(e)...)
	err := t.next.UpdateCursor(ctx, e)
	finish(span, err)
	return err
}

// ChangesSince implements Store.
func (t *TracedStore) ChangesSince(ctx context.Context, since *int64) ([]Cell, error) {
	var attrs []attribute.KeyValue
	if since != nil {
		attrs = append(attrs, attribute.Int64("canvas.since", *since))
	}
	ctx, span := t.start(ctx, "changes_since", attrs...)
	cells, err := t.next.ChangesSince(ctx, since)
	span.SetAttributes(attribute.Int("canvas.cells", len(cells)))
	finish(span, err)
	return cells, err
}

// Close implements Store.
func (t *TracedStore) Close() error {
	return t.next.Close()
}

// Cursor implements CursorReader when the wrapped store does.
func (t *TracedStore) Cursor(ctx context.Context, id int64) (Cursor, error) {
	cr, ok := t.next.(CursorReader)
	if !ok {
		return Cursor{}, ErrUnknownClient
	}
	ctx, span := t.start(ctx, "cursor", attribute.Int64("canvas.client_id", id))
	cur, err := cr.Cursor(ctx, id)
	finish(span, err)
	return cur, err
}
