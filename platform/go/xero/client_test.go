package xero

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/connect/token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "client-id", user)
		require.Equal(t, "client-secret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":1800,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{IdentityBaseURL: srv.URL})
	tokens, err := c.RefreshToken(context.Background(), "client-id", "client-secret", "old-refresh")
	require.NoError(t, err)
	require.Equal(t, "new-access", tokens.AccessToken)
	require.Equal(t, "new-refresh", tokens.RefreshToken)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, now.Add(30*time.Minute), tokens.ExpiresAt(now))
}

func TestRefreshTokenInvalidGrant(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{IdentityBaseURL: srv.URL})
	_, err := c.RefreshToken(context.Background(), "id", "secret", "stale")
	require.Error(t, err)
	require.True(t, IsAuthRejected(err))
	require.False(t, IsTransient(err))
}

func TestRefreshTokenServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewClient(Config{IdentityBaseURL: srv.URL})
	_, err := c.RefreshToken(context.Background(), "id", "secret", "rt")
	require.Error(t, err)
	require.False(t, IsAuthRejected(err))
	require.True(t, IsTransient(err))
}

func TestConnections(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/connections", r.URL.Path)
		require.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"conn-1","tenantId":"org-a","tenantType":"ORGANISATION","tenantName":"Alpha Pty Ltd"}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{IdentityBaseURL: srv.URL})
	conns, err := c.Connections(context.Background(), "token-123")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	require.Equal(t, "org-a", conns[0].TenantID)
	require.Equal(t, "Alpha Pty Ltd", conns[0].TenantName)
}

func TestTaxSummarySendsTenantHeaderAndPeriod(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api.xro/2.0/Reports/TaxSummary", r.URL.Path)
		require.Equal(t, "org-a", r.Header.Get(tenantHeader))
		require.Equal(t, "2026-04-01", r.URL.Query().Get("fromDate"))
		require.Equal(t, "2026-06-30", r.URL.Query().Get("toDate"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Reports":[{"ReportID":"TaxSummary","ReportName":"Tax Summary","Rows":[
			{"RowType":"Section","Title":"GST","Rows":[
				{"RowType":"Row","Cells":[{"Value":"Total sales (G1)"},{"Value":"100000.00"}]}
			]}
		]}]}`))
	}))
	defer srv.Close()

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	c := NewClient(Config{APIBaseURL: srv.URL})
	report, err := c.TaxSummary(context.Background(), "at", "org-a", from, to)
	require.NoError(t, err)
	require.Equal(t, "Tax Summary", report.ReportName)
	require.Len(t, report.Rows, 1)
	require.Equal(t, "GST", report.Rows[0].Title)
}

func TestInvoicesDecodesAmounts(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api.xro/2.0/Invoices", r.URL.Path)
		require.Contains(t, r.URL.Query().Get("where"), "AUTHORISED")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Invoices":[{"InvoiceID":"inv-1","Type":"ACCREC","Status":"AUTHORISED","SubTotal":1000,"TotalTax":100,"Total":1100}]}`))
	}))
	defer srv.Close()

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	c := NewClient(Config{APIBaseURL: srv.URL})
	invoices, err := c.Invoices(context.Background(), "at", "org-a", from, to)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.Equal(t, InvoiceTypeSale, invoices[0].Type)
	require.True(t, invoices[0].SubTotal.Equal(decimal.NewFromInt(1000)))
	require.True(t, invoices[0].TotalTax.Equal(decimal.NewFromInt(100)))
}

func TestReportNotFoundIsNotTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"Message":"report not found"}`))
	}))
	defer srv.Close()

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	c := NewClient(Config{APIBaseURL: srv.URL})
	_, err := c.BalanceSheet(context.Background(), "at", "org-a", from, to)
	require.Error(t, err)
	require.False(t, IsTransient(err))
}
