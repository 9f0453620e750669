package store

import (
	"context"
	"os"
	"testing"
)

// Set TEXTCANVAS_TEST_POSTGRES to a disposable database URL to run these.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEXTCANVAS_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("TEXTCANVAS_TEST_POSTGRES not set")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		ctx := context.Background()
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			t.Fatalf("OpenPostgres() error = %v", err)
		}
		if _, err := s.pool.Exec(ctx, `TRUNCATE cell, client RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
