package persistence

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// mustTestPool creates a test database connection pool and applies the platform DDL.
// Tests are skipped when TEST_DATABASE_URL is not set; CI provides a disposable
// Postgres and sets the variable.
func mustTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url, ok := os.LookupEnv("TEST_DATABASE_URL")
	if !ok || url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping persistence test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("create test pool: %v", err)
	}

	if err := Bootstrap(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply platform schema: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}
