package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearledger/taxflow/domains/connections/be/service"
)

type mockLifecycle struct {
	consentURLFn func(companyID uuid.UUID) string
	completeFn   func(ctx context.Context, state, code string) (uuid.UUID, error)
	disconnectFn func(ctx context.Context, companyID uuid.UUID) error
	overviewFn   func(ctx context.Context, companyID uuid.UUID) (service.ConnectionOverview, error)
}

func (m *mockLifecycle) ConsentURL(companyID uuid.UUID) string {
	if m.consentURLFn == nil {
		panic("consentURLFn not configured")
	}
	return m.consentURLFn(companyID)
}

func (m *mockLifecycle) CompleteConsent(ctx context.Context, state, code string) (uuid.UUID, error) {
	if m.completeFn == nil {
		panic("completeFn not configured")
	}
	return m.completeFn(ctx, state, code)
}

func (m *mockLifecycle) Disconnect(ctx context.Context, companyID uuid.UUID) error {
	if m.disconnectFn == nil {
		panic("disconnectFn not configured")
	}
	return m.disconnectFn(ctx, companyID)
}

func (m *mockLifecycle) Overview(ctx context.Context, companyID uuid.UUID) (service.ConnectionOverview, error) {
	if m.overviewFn == nil {
		panic("overviewFn not configured")
	}
	return m.overviewFn(ctx, companyID)
}

func serve(t *testing.T, svc Lifecycle, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	New(svc, zaptest.NewLogger(t)).Routes().ServeHTTP(rec, req)
	return rec
}

func TestStartConsent(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	svc := &mockLifecycle{
		consentURLFn: func(id uuid.UUID) string {
			require.Equal(t, companyID, id)
			return "https://login.xero.com/identity/connect/authorize?state=abc"
		},
	}

	body := fmt.Sprintf(`{"companyId":%q}`, companyID)
	req := httptest.NewRequest(http.MethodPost, "/xero/consent", strings.NewReader(body))
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp consentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.ConsentURL, "state=abc")
}

func TestStartConsentRequiresCompanyID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/xero/consent", strings.NewReader(`{}`))
	rec := serve(t, &mockLifecycle{}, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestCompleteConsent(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	svc := &mockLifecycle{
		completeFn: func(_ context.Context, state, code string) (uuid.UUID, error) {
			require.Equal(t, "state-1", state)
			require.Equal(t, "code-1", code)
			return companyID, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/xero/callback?state=state-1&code=code-1", nil)
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp callbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, companyID, resp.CompanyID)
	require.Equal(t, "connected", resp.Status)
}

func TestCompleteConsentUnknownState(t *testing.T) {
	t.Parallel()

	svc := &mockLifecycle{
		completeFn: func(context.Context, string, string) (uuid.UUID, error) {
			return uuid.Nil, service.ErrInvalidState
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/xero/callback?state=stale&code=c", nil)
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var details map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	require.Contains(t, details["remediation"], "restart")
}

func TestCompleteConsentMissingParams(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/xero/callback", nil)
	rec := serve(t, &mockLifecycle{}, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverview(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	expiry := time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC)
	svc := &mockLifecycle{
		overviewFn: func(_ context.Context, id uuid.UUID) (service.ConnectionOverview, error) {
			require.Equal(t, companyID, id)
			return service.ConnectionOverview{
				Status:         service.StatusActive,
				TokenExpiresAt: expiry,
				Tenants: []service.AuthorizedTenant{
					{TenantID: "org-a", DisplayName: "Acme Pty Ltd"},
				},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/"+companyID.String(), nil)
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp overviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "active", resp.Status)
	require.Len(t, resp.Tenants, 1)
	require.Equal(t, "Acme Pty Ltd", resp.Tenants[0].DisplayName)

	// the read model must not leak secrets
	require.NotContains(t, rec.Body.String(), "token\"")
	require.NotContains(t, rec.Body.String(), "secret")
}

func TestOverviewNotConnected(t *testing.T) {
	t.Parallel()

	svc := &mockLifecycle{
		overviewFn: func(context.Context, uuid.UUID) (service.ConnectionOverview, error) {
			return service.ConnectionOverview{}, service.ErrNotConnected
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/"+uuid.NewString(), nil)
	rec := serve(t, svc, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOverviewRejectsMalformedID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/not-a-uuid", nil)
	rec := serve(t, &mockLifecycle{}, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisconnect(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	var called bool
	svc := &mockLifecycle{
		disconnectFn: func(_ context.Context, id uuid.UUID) error {
			require.Equal(t, companyID, id)
			called = true
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/"+companyID.String(), nil)
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, called)
}
