// Package service owns the provider-connection lifecycle for a company:
// encrypted token storage, on-demand refresh with per-company single-flight,
// authorised-tenant resolution, and the OAuth consent round-trip.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/clearledger/taxflow/platform/go/logging"
	"github.com/clearledger/taxflow/platform/go/xero"
)

// Errors returned by the service layer.
var (
	ErrNotConnected            = errors.New("company has no provider connection")
	ErrCredentialsMissing      = errors.New("no usable client credentials")
	ErrReauthorizationRequired = errors.New("provider consent must be repeated")
	ErrTokenRefreshTransient   = errors.New("token refresh temporarily unavailable")
	ErrNoAuthorizedTenants     = errors.New("company has no authorized organisations")
	ErrInvalidState            = errors.New("unknown or expired consent state")
)

// Status is the connection lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Connection is the domain model for a company's provider connection.
// Secrets are plaintext at this layer; the repository seals them at rest.
type Connection struct {
	CompanyID            uuid.UUID
	ClientID             string
	ClientSecret         string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	Status               Status
}

// AuthorizedTenant is one organisation the company consented to.
type AuthorizedTenant struct {
	CompanyID       uuid.UUID
	TenantID        string
	DisplayName     string
	ConnectionRefID string
}

// Repository abstracts connection and tenant persistence.
type Repository interface {
	GetConnection(ctx context.Context, companyID uuid.UUID) (Connection, error)
	SaveConnection(ctx context.Context, conn Connection) (Connection, error)
	UpdateTokens(ctx context.Context, companyID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) (Connection, error)
	SetStatus(ctx context.Context, companyID uuid.UUID, status Status) error
	ListTenants(ctx context.Context, companyID uuid.UUID) ([]AuthorizedTenant, error)
	ReplaceTenants(ctx context.Context, companyID uuid.UUID, tenants []AuthorizedTenant) error
	DeleteTenants(ctx context.Context, companyID uuid.UUID) error
}

// Identity is the subset of the upstream identity service the lifecycle needs.
type Identity interface {
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (xero.TokenSet, error)
	Connections(ctx context.Context, accessToken string) ([]xero.Connection, error)
}

// FallbackCredentials are the platform-wide OAuth app credentials used when a
// company has no stored pair. Injected at construction, never a global.
type FallbackCredentials struct {
	ClientID     string
	ClientSecret string
}

// Config carries the construction-time knobs.
type Config struct {
	Fallback      FallbackCredentials
	AuthorizeURL  string // provider consent page
	TokenURL      string // provider token endpoint (code exchange)
	RedirectURI   string
	Scopes        []string
	RefreshMargin time.Duration // treat tokens expiring within this window as stale (default 60s)
	RetryBackoff  time.Duration // wait before the single transient retry (default 500ms)
	StateTTL      time.Duration // consent state lifetime (default 10m)
}

// Service implements the connection lifecycle.
type Service struct {
	repo     Repository
	identity Identity
	cfg      Config
	oauth    oauth2.Config

	refreshGroup singleflight.Group
	states       *stateStore

	logger *zap.Logger
	now    func() time.Time
}

// New constructs the service.
func New(repo Repository, identity Identity, cfg Config, logger *zap.Logger) *Service {
	if repo == nil {
		panic("connections repository is required")
	}
	if identity == nil {
		panic("identity client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = 60 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	return &Service{
		repo:     repo,
		identity: identity,
		cfg:      cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.Fallback.ClientID,
			ClientSecret: cfg.Fallback.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		states: newStateStore(cfg.StateTTL),
		logger: logger,
		now:    time.Now,
	}
}

// GetValidAccessToken returns an access token guaranteed to be fresh for at
// least the configured margin. Refreshes are single-flight per company:
// concurrent callers share one token-endpoint call.
func (s *Service) GetValidAccessToken(ctx context.Context, companyID uuid.UUID) (string, error) {
	conn, err := s.repo.GetConnection(ctx, companyID)
	if err != nil {
		return "", err
	}
	if conn.Status != StatusActive {
		return "", fmt.Errorf("connection status %s: %w", conn.Status, ErrReauthorizationRequired)
	}
	if s.fresh(conn) {
		return conn.AccessToken, nil
	}

	token, err, _ := s.refreshGroup.Do(companyID.String(), func() (any, error) {
		return s.refresh(ctx, companyID)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *Service) fresh(conn Connection) bool {
	return conn.AccessTokenExpiresAt.After(s.now().Add(s.cfg.RefreshMargin))
}

// refresh runs inside the single-flight group. It re-reads the connection so a
// caller that queued behind a completed refresh does not trigger a second one.
func (s *Service) refresh(ctx context.Context, companyID uuid.UUID) (string, error) {
	conn, err := s.repo.GetConnection(ctx, companyID)
	if err != nil {
		return "", err
	}
	if conn.Status != StatusActive {
		return "", fmt.Errorf("connection status %s: %w", conn.Status, ErrReauthorizationRequired)
	}
	if s.fresh(conn) {
		return conn.AccessToken, nil
	}

	clientID, clientSecret := conn.ClientID, conn.ClientSecret
	if clientID == "" || clientSecret == "" {
		clientID, clientSecret = s.cfg.Fallback.ClientID, s.cfg.Fallback.ClientSecret
	}
	if clientID == "" || clientSecret == "" {
		return "", ErrCredentialsMissing
	}

	logger := logging.FromContext(ctx, s.logger).With(zap.String("company_id", companyID.String()))

	tokens, err := s.identity.RefreshToken(ctx, clientID, clientSecret, conn.RefreshToken)
	if err != nil && xero.IsTransient(err) {
		logger.Warn("token refresh transient failure, retrying once", zap.Error(err))
		select {
		case <-time.After(s.cfg.RetryBackoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		tokens, err = s.identity.RefreshToken(ctx, clientID, clientSecret, conn.RefreshToken)
	}
	if err != nil {
		if xero.IsAuthRejected(err) {
			logger.Warn("refresh token rejected by provider", zap.Error(err))
			if stErr := s.repo.SetStatus(ctx, companyID, StatusExpired); stErr != nil {
				logger.Error("mark connection expired", zap.Error(stErr))
			}
			return "", fmt.Errorf("%v: %w", err, ErrReauthorizationRequired)
		}
		if xero.IsTransient(err) {
			return "", fmt.Errorf("%v: %w", err, ErrTokenRefreshTransient)
		}
		return "", fmt.Errorf("token refresh: %w", err)
	}

	updated, err := s.repo.UpdateTokens(ctx, companyID, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt(s.now()))
	if err != nil {
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}

	logger.Info("access token refreshed", zap.Time("expires_at", updated.AccessTokenExpiresAt))
	return updated.AccessToken, nil
}

// ResolveTenant validates a requested organisation against the company's
// authorized set. An unknown requested tenant falls back to the first
// authorized one and logs a security-relevant mismatch; this fail-open
// behaviour keeps report generation resilient when the UI holds a stale id.
func (s *Service) ResolveTenant(ctx context.Context, companyID uuid.UUID, requestedTenantID string) (AuthorizedTenant, error) {
	tenants, err := s.repo.ListTenants(ctx, companyID)
	if err != nil {
		return AuthorizedTenant{}, err
	}

	if len(tenants) == 0 {
		tenants, err = s.refreshTenants(ctx, companyID)
		if err != nil {
			return AuthorizedTenant{}, err
		}
	}
	if len(tenants) == 0 {
		return AuthorizedTenant{}, ErrNoAuthorizedTenants
	}

	if requestedTenantID == "" {
		return tenants[0], nil
	}
	for _, t := range tenants {
		if t.TenantID == requestedTenantID {
			return t, nil
		}
	}

	logging.FromContext(ctx, s.logger).Warn("tenant mismatch: requested organisation not authorized, serving default",
		zap.String("company_id", companyID.String()),
		zap.String("requested_tenant_id", requestedTenantID),
		zap.String("served_tenant_id", tenants[0].TenantID),
	)
	return tenants[0], nil
}

// refreshTenants pulls the live connection list and replaces the stored set.
func (s *Service) refreshTenants(ctx context.Context, companyID uuid.UUID) ([]AuthorizedTenant, error) {
	token, err := s.GetValidAccessToken(ctx, companyID)
	if err != nil {
		return nil, err
	}

	conns, err := s.identity.Connections(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch live connection list: %w", err)
	}

	tenants := make([]AuthorizedTenant, 0, len(conns))
	for _, c := range conns {
		tenants = append(tenants, AuthorizedTenant{
			CompanyID:       companyID,
			TenantID:        c.TenantID,
			DisplayName:     c.TenantName,
			ConnectionRefID: c.ID,
		})
	}
	if err := s.repo.ReplaceTenants(ctx, companyID, tenants); err != nil {
		return nil, fmt.Errorf("persist authorized tenants: %w", err)
	}
	return tenants, nil
}

// ConsentURL issues the provider consent URL with a one-shot state bound to the company.
func (s *Service) ConsentURL(companyID uuid.UUID) string {
	state := s.states.issue(companyID, s.now())
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// CompleteConsent handles the OAuth redirect: validates state, exchanges the
// code, persists the connection, and replaces the authorized tenant set from
// the live connections endpoint.
func (s *Service) CompleteConsent(ctx context.Context, state, code string) (uuid.UUID, error) {
	companyID, ok := s.states.consume(state, s.now())
	if !ok {
		return uuid.Nil, ErrInvalidState
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return uuid.Nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	conn := Connection{
		CompanyID:            companyID,
		AccessToken:          token.AccessToken,
		RefreshToken:         token.RefreshToken,
		AccessTokenExpiresAt: token.Expiry,
		Status:               StatusActive,
	}
	if _, err := s.repo.SaveConnection(ctx, conn); err != nil {
		return uuid.Nil, fmt.Errorf("persist connection: %w", err)
	}

	if _, err := s.refreshTenants(ctx, companyID); err != nil {
		return uuid.Nil, err
	}

	logging.FromContext(ctx, s.logger).Info("provider consent completed",
		zap.String("company_id", companyID.String()))
	return companyID, nil
}

// Disconnect revokes the connection and clears the authorized tenant set.
func (s *Service) Disconnect(ctx context.Context, companyID uuid.UUID) error {
	if err := s.repo.SetStatus(ctx, companyID, StatusRevoked); err != nil {
		return err
	}
	return s.repo.DeleteTenants(ctx, companyID)
}

// ConnectionOverview is the read model for the UI: no secrets.
type ConnectionOverview struct {
	Status         Status
	TokenExpiresAt time.Time
	Tenants        []AuthorizedTenant
}

// Overview returns the company's connection state and tenant list.
func (s *Service) Overview(ctx context.Context, companyID uuid.UUID) (ConnectionOverview, error) {
	conn, err := s.repo.GetConnection(ctx, companyID)
	if err != nil {
		return ConnectionOverview{}, err
	}
	tenants, err := s.repo.ListTenants(ctx, companyID)
	if err != nil {
		return ConnectionOverview{}, err
	}
	return ConnectionOverview{
		Status:         conn.Status,
		TokenExpiresAt: conn.AccessTokenExpiresAt,
		Tenants:        tenants,
	}, nil
}
