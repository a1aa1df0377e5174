package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectionsTable is the fully-qualified table holding one provider connection per company.
const ConnectionsTable = "platform.xero_connections"

// Connection lifecycle states.
const (
	ConnectionStatusActive  = "active"
	ConnectionStatusExpired = "expired"
	ConnectionStatusRevoked = "revoked"
)

// ConnectionRecord is one row of the connections table. Token and secret
// columns hold sealed (encrypted) values; this layer never sees plaintext.
type ConnectionRecord struct {
	CompanyID            uuid.UUID `db:"company_id"`
	ClientID             string    `db:"client_id"`
	ClientSecretSealed   string    `db:"client_secret_sealed"`
	AccessTokenSealed    string    `db:"access_token_sealed"`
	RefreshTokenSealed   string    `db:"refresh_token_sealed"`
	AccessTokenExpiresAt time.Time `db:"access_token_expires_at"`
	Status               string    `db:"status"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

// ConnectionStore provides access to the connections table.
type ConnectionStore struct {
	pool *pgxpool.Pool
}

// NewConnectionStore creates a store; assumes Bootstrap already created the table.
func NewConnectionStore(pool *pgxpool.Pool) (*ConnectionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ConnectionStore{pool: pool}, nil
}

const connectionColumns = `company_id, client_id, client_secret_sealed, access_token_sealed,
        refresh_token_sealed, access_token_expires_at, status, created_at, updated_at`

// Upsert inserts or replaces the company's connection; consent completion uses
// this so a re-connect overwrites whatever was there before.
func (s *ConnectionStore) Upsert(ctx context.Context, rec ConnectionRecord) (ConnectionRecord, error) {
	if rec.CompanyID == uuid.Nil {
		return ConnectionRecord{}, errors.New("company id is required")
	}
	if rec.Status == "" {
		rec.Status = ConnectionStatusActive
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (
            company_id, client_id, client_secret_sealed, access_token_sealed,
            refresh_token_sealed, access_token_expires_at, status
        ) VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (company_id) DO UPDATE SET
            client_id = EXCLUDED.client_id,
            client_secret_sealed = EXCLUDED.client_secret_sealed,
            access_token_sealed = EXCLUDED.access_token_sealed,
            refresh_token_sealed = EXCLUDED.refresh_token_sealed,
            access_token_expires_at = EXCLUDED.access_token_expires_at,
            status = EXCLUDED.status,
            updated_at = now()
        RETURNING %s
    `, ConnectionsTable, connectionColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.CompanyID, rec.ClientID, rec.ClientSecretSealed, rec.AccessTokenSealed,
		rec.RefreshTokenSealed, rec.AccessTokenExpiresAt, rec.Status,
	)
	return scanConnectionRecord(row)
}

// Get fetches the company's connection regardless of status.
func (s *ConnectionStore) Get(ctx context.Context, companyID uuid.UUID) (ConnectionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE company_id = $1`, connectionColumns, ConnectionsTable)
	return scanConnectionRecord(s.pool.QueryRow(ctx, query, companyID))
}

// UpdateTokens stores a freshly refreshed token pair and resets status to active.
func (s *ConnectionStore) UpdateTokens(ctx context.Context, companyID uuid.UUID, accessSealed, refreshSealed string, expiresAt time.Time) (ConnectionRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET
            access_token_sealed = $2,
            refresh_token_sealed = $3,
            access_token_expires_at = $4,
            status = '%s',
            updated_at = now()
        WHERE company_id = $1
        RETURNING %s
    `, ConnectionsTable, ConnectionStatusActive, connectionColumns)
	return scanConnectionRecord(s.pool.QueryRow(ctx, query, companyID, accessSealed, refreshSealed, expiresAt))
}

// SetStatus transitions the connection's lifecycle state.
func (s *ConnectionStore) SetStatus(ctx context.Context, companyID uuid.UUID, status string) (ConnectionRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET status = $2, updated_at = now()
        WHERE company_id = $1
        RETURNING %s
    `, ConnectionsTable, connectionColumns)
	return scanConnectionRecord(s.pool.QueryRow(ctx, query, companyID, status))
}

func scanConnectionRecord(row pgx.Row) (ConnectionRecord, error) {
	var rec ConnectionRecord
	err := row.Scan(
		&rec.CompanyID, &rec.ClientID, &rec.ClientSecretSealed, &rec.AccessTokenSealed,
		&rec.RefreshTokenSealed, &rec.AccessTokenExpiresAt, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConnectionRecord{}, ErrNotFound
	}
	if err != nil {
		return ConnectionRecord{}, err
	}
	return rec, nil
}
