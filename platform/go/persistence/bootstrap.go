package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/clearledger/taxflow/database"
)

// Bootstrap applies the platform DDL in a single transaction:
//  1. platform/xero_connections.sql
//  2. platform/authorized_tenants.sql
//
// SQL is embedded at build time so binaries stay self-contained. The helper is
// idempotent and intended for service startup and tests.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("bootstrap: pool is required")
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.XeroConnectionsSQL)...)
	statements = append(statements, splitStatements(sqlassets.AuthorizedTenantsSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// splitStatements breaks an embedded DDL file into individual statements.
// Good enough for the schema files shipped here: no functions, no dollar quoting.
func splitStatements(ddl string) []string {
	var statements []string
	for _, candidate := range strings.Split(ddl, ";") {
		var kept []string
		for _, line := range strings.Split(candidate, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			kept = append(kept, line)
		}
		stmt := strings.TrimSpace(strings.Join(kept, "\n"))
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
