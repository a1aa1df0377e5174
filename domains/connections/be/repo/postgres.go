// Package repo adapts the shared persistence stores to the connections domain
// and is the encryption boundary: tokens and client secrets are sealed before
// they reach Postgres and opened on the way out.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/taxflow/domains/connections/be/service"
	"github.com/clearledger/taxflow/platform/go/persistence"
	"github.com/clearledger/taxflow/platform/go/secrets"
)

// PostgresRepository implements the connections repository over the shared stores.
type PostgresRepository struct {
	connections *persistence.ConnectionStore
	tenants     *persistence.AuthorizedTenantStore
	box         *secrets.Box
}

// NewPostgresRepository constructs a repository; the box seals secrets at rest.
func NewPostgresRepository(connections *persistence.ConnectionStore, tenants *persistence.AuthorizedTenantStore, box *secrets.Box) *PostgresRepository {
	if connections == nil {
		panic("connection store is required")
	}
	if tenants == nil {
		panic("authorized tenant store is required")
	}
	if box == nil {
		panic("secrets box is required")
	}
	return &PostgresRepository{connections: connections, tenants: tenants, box: box}
}

func (r *PostgresRepository) GetConnection(ctx context.Context, companyID uuid.UUID) (service.Connection, error) {
	rec, err := r.connections.Get(ctx, companyID)
	if err != nil {
		return service.Connection{}, mapNotFound(err)
	}
	return r.toService(rec)
}

func (r *PostgresRepository) SaveConnection(ctx context.Context, conn service.Connection) (service.Connection, error) {
	rec, err := r.toRecord(conn)
	if err != nil {
		return service.Connection{}, err
	}
	out, err := r.connections.Upsert(ctx, rec)
	if err != nil {
		return service.Connection{}, err
	}
	return r.toService(out)
}

func (r *PostgresRepository) UpdateTokens(ctx context.Context, companyID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) (service.Connection, error) {
	accessSealed, err := r.box.Seal(accessToken)
	if err != nil {
		return service.Connection{}, fmt.Errorf("seal access token: %w", err)
	}
	refreshSealed, err := r.box.Seal(refreshToken)
	if err != nil {
		return service.Connection{}, fmt.Errorf("seal refresh token: %w", err)
	}
	out, err := r.connections.UpdateTokens(ctx, companyID, accessSealed, refreshSealed, expiresAt)
	if err != nil {
		return service.Connection{}, mapNotFound(err)
	}
	return r.toService(out)
}

func (r *PostgresRepository) SetStatus(ctx context.Context, companyID uuid.UUID, status service.Status) error {
	_, err := r.connections.SetStatus(ctx, companyID, string(status))
	return mapNotFound(err)
}

func (r *PostgresRepository) ListTenants(ctx context.Context, companyID uuid.UUID) ([]service.AuthorizedTenant, error) {
	rows, err := r.tenants.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]service.AuthorizedTenant, 0, len(rows))
	for _, rec := range rows {
		out = append(out, service.AuthorizedTenant{
			CompanyID:       rec.CompanyID,
			TenantID:        rec.TenantID,
			DisplayName:     rec.DisplayName,
			ConnectionRefID: rec.ConnectionRefID,
		})
	}
	return out, nil
}

func (r *PostgresRepository) ReplaceTenants(ctx context.Context, companyID uuid.UUID, tenants []service.AuthorizedTenant) error {
	rows := make([]persistence.AuthorizedTenantRecord, 0, len(tenants))
	for _, t := range tenants {
		rows = append(rows, persistence.AuthorizedTenantRecord{
			CompanyID:       companyID,
			TenantID:        t.TenantID,
			DisplayName:     t.DisplayName,
			ConnectionRefID: t.ConnectionRefID,
		})
	}
	return r.tenants.ReplaceAll(ctx, companyID, rows)
}

func (r *PostgresRepository) DeleteTenants(ctx context.Context, companyID uuid.UUID) error {
	return r.tenants.DeleteByCompany(ctx, companyID)
}

func (r *PostgresRepository) toRecord(conn service.Connection) (persistence.ConnectionRecord, error) {
	rec := persistence.ConnectionRecord{
		CompanyID:            conn.CompanyID,
		ClientID:             conn.ClientID,
		AccessTokenExpiresAt: conn.AccessTokenExpiresAt,
		Status:               string(conn.Status),
	}
	var err error
	if conn.ClientSecret != "" {
		if rec.ClientSecretSealed, err = r.box.Seal(conn.ClientSecret); err != nil {
			return persistence.ConnectionRecord{}, fmt.Errorf("seal client secret: %w", err)
		}
	}
	if rec.AccessTokenSealed, err = r.box.Seal(conn.AccessToken); err != nil {
		return persistence.ConnectionRecord{}, fmt.Errorf("seal access token: %w", err)
	}
	if rec.RefreshTokenSealed, err = r.box.Seal(conn.RefreshToken); err != nil {
		return persistence.ConnectionRecord{}, fmt.Errorf("seal refresh token: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) toService(rec persistence.ConnectionRecord) (service.Connection, error) {
	conn := service.Connection{
		CompanyID:            rec.CompanyID,
		ClientID:             rec.ClientID,
		AccessTokenExpiresAt: rec.AccessTokenExpiresAt,
		Status:               service.Status(rec.Status),
	}
	var err error
	if rec.ClientSecretSealed != "" {
		if conn.ClientSecret, err = r.box.Open(rec.ClientSecretSealed); err != nil {
			return service.Connection{}, fmt.Errorf("open client secret: %w", err)
		}
	}
	if conn.AccessToken, err = r.box.Open(rec.AccessTokenSealed); err != nil {
		return service.Connection{}, fmt.Errorf("open access token: %w", err)
	}
	if conn.RefreshToken, err = r.box.Open(rec.RefreshTokenSealed); err != nil {
		return service.Connection{}, fmt.Errorf("open refresh token: %w", err)
	}
	return conn, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotConnected
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
