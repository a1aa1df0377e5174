package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthorizedTenantsTable holds the organisations each company consented to.
const AuthorizedTenantsTable = "platform.authorized_tenants"

// AuthorizedTenantRecord is one authorised organisation for a company.
// Position is the provider's original ordering from the connections endpoint.
type AuthorizedTenantRecord struct {
	CompanyID       uuid.UUID `db:"company_id"`
	TenantID        string    `db:"tenant_id"`
	DisplayName     string    `db:"display_name"`
	ConnectionRefID string    `db:"connection_ref_id"`
	Position        int       `db:"position"`
}

// AuthorizedTenantStore provides access to the authorized tenants table.
type AuthorizedTenantStore struct {
	pool *pgxpool.Pool
}

// NewAuthorizedTenantStore creates a store; assumes Bootstrap already created the table.
func NewAuthorizedTenantStore(pool *pgxpool.Pool) (*AuthorizedTenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AuthorizedTenantStore{pool: pool}, nil
}

// ReplaceAll swaps the company's tenant set atomically: delete everything, then
// insert the new rows with their fetch-order positions. Readers never observe a
// partially-updated set.
func (s *AuthorizedTenantStore) ReplaceAll(ctx context.Context, companyID uuid.UUID, rows []AuthorizedTenantRecord) error {
	if companyID == uuid.Nil {
		return errors.New("company id is required")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	del := fmt.Sprintf("DELETE FROM %s WHERE company_id = $1", AuthorizedTenantsTable)
	if _, err = tx.Exec(ctx, del, companyID); err != nil {
		return err
	}

	insert := fmt.Sprintf(`
        INSERT INTO %s (company_id, tenant_id, display_name, connection_ref_id, position)
        VALUES ($1,$2,$3,$4,$5)
    `, AuthorizedTenantsTable)
	for i, rec := range rows {
		if _, err = tx.Exec(ctx, insert, companyID, rec.TenantID, rec.DisplayName, rec.ConnectionRefID, i); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListByCompany returns the tenant set in original fetch order.
func (s *AuthorizedTenantStore) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]AuthorizedTenantRecord, error) {
	query := fmt.Sprintf(`
        SELECT company_id, tenant_id, display_name, connection_ref_id, position
        FROM %s WHERE company_id = $1 ORDER BY position
    `, AuthorizedTenantsTable)

	rows, err := s.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuthorizedTenantRecord
	for rows.Next() {
		var rec AuthorizedTenantRecord
		if err := rows.Scan(&rec.CompanyID, &rec.TenantID, &rec.DisplayName, &rec.ConnectionRefID, &rec.Position); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteByCompany clears the company's tenant set (disconnect).
func (s *AuthorizedTenantStore) DeleteByCompany(ctx context.Context, companyID uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE company_id = $1", AuthorizedTenantsTable)
	_, err := s.pool.Exec(ctx, query, companyID)
	return err
}
