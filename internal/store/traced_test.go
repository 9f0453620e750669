package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// recordingTracer records span names and otherwise behaves like noop.
type recordingTracer struct {
	noop.Tracer

	mu    sync.Mutex
	names []string
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return r.Tracer.Start(ctx, name, opts...)
}

func (r *recordingTracer) spans() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

type recordingProvider struct {
	noop.TracerProvider
	tracer *recordingTracer
}

func (p recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return p.tracer
}

func TestTracedStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return Traced(NewMemoryStore())
	})
}

func TestTracedStoreSpans(t *testing.T) {
	rec := &recordingTracer{}
	s := Traced(NewMemoryStore(), WithTracerProvider(recordingProvider{tracer: rec}))
	ctx := context.Background()

	id, _ := s.NewClient(ctx, "127.0.0.1", 1, 1)
	s.SetText(ctx, Edit{ClientID: id, C: strPtr("x"), Timestamp: 2})
	s.UpdateCursor(ctx, Edit{ClientID: id, X: 1, Timestamp: 3})
	s.ChangesSince(ctx, nil)
	s.Cursor(ctx, id)

	want := []string{"store.new_client", "store.set_text", "store.update_cursor", "store.changes_since", "store.cursor"}
	if got := rec.spans(); !equalStrings(got, want) {
		t.Errorf("spans = %v, want %v", got, want)
	}
}

func TestTracedStorePropagatesErrors(t *testing.T) {
	inner := NewMemoryStore()
	s := Traced(inner)
	inner.Close()

	if err := s.SetText(context.Background(), Edit{}); !errors.Is(err, ErrClosed) {
		t.Errorf("SetText() error = %v, want ErrClosed", err)
	}
	if s.Unwrap() != Store(inner) {
		t.Error("Unwrap() did not return the wrapped store")
	}
}

func TestBackendName(t *testing.T) {
	tests := []struct {
		store Store
		want  string
	}{
		{NewMemoryStore(), "memory"},
		{&SQLStore{}, "sqlite"},
		{&PostgresStore{}, "postgresql"},
		{&RedisStore{}, "redis"},
	}
	for _, tc := range tests {
		if got := Traced(tc.store).backend; got != tc.want {
			t.Errorf("backend(%T) = %q, want %q", tc.store, got, tc.want)
		}
	}
	if got := Traced(NewMemoryStore(), WithBackendName("custom")).backend; got != "custom" {
		t.Errorf("WithBackendName: backend = %q", got)
	}
}
