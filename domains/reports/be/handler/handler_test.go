package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	connections "github.com/clearledger/taxflow/domains/connections/be/service"
	"github.com/clearledger/taxflow/domains/reports/be/service"
)

type mockReporter struct {
	requestFn func(ctx context.Context, req service.ReportRequest) (service.ReportResult, error)
}

func (m *mockReporter) RequestComplianceReport(ctx context.Context, req service.ReportRequest) (service.ReportResult, error) {
	if m.requestFn == nil {
		panic("requestFn not configured")
	}
	return m.requestFn(ctx, req)
}

func serve(t *testing.T, svc Reporter, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	New(svc, zaptest.NewLogger(t)).Routes().ServeHTTP(rec, req)
	return rec
}

func requestBody(companyID uuid.UUID, kind string) string {
	return fmt.Sprintf(`{
		"companyId": %q,
		"kind": %q,
		"period": {"from": "2026-04-01T00:00:00Z", "to": "2026-06-30T00:00:00Z", "label": "Q4 FY26"},
		"tenantId": "org-a"
	}`, companyID, kind)
}

func TestRequestReport(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	svc := &mockReporter{
		requestFn: func(_ context.Context, req service.ReportRequest) (service.ReportResult, error) {
			require.Equal(t, companyID, req.CompanyID)
			require.Equal(t, service.KindBAS, req.Kind)
			require.Equal(t, "org-a", req.RequestedTenantID)
			require.True(t, req.Period.Valid())

			return service.ReportResult{
				TenantID: "org-a",
				Fields: service.ComplianceFields{
					Kind: service.KindBAS,
					Fields: map[string]decimal.Decimal{
						"G1": decimal.NewFromInt(100000),
						"1A": decimal.NewFromInt(10000),
					},
					SourceNotes: map[string]service.SourceNote{
						"G1": service.SourceTaxSummary,
						"1A": service.SourceTaxSummary,
					},
				},
				PartialFailures: []string{service.EndpointBalanceSheet},
			}, nil
		},
	}

	rec := serve(t, svc, requestBody(companyID, "BAS"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "org-a", resp.TenantID)
	require.Equal(t, "BAS", resp.Kind)
	require.Equal(t, fieldView{Amount: "100000.00", Source: "tax_summary"}, resp.Fields["G1"])
	require.Equal(t, []string{service.EndpointBalanceSheet}, resp.PartialFailures)
	require.NotNil(t, resp.Anomalies)
}

func TestRequestReportValidation(t *testing.T) {
	t.Parallel()

	rec := serve(t, &mockReporter{}, `{"kind": "BAS"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, &mockReporter{}, `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestReportErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"unknown kind", service.ErrUnknownKind, http.StatusBadRequest, "validation-error"},
		{"invalid period", service.ErrInvalidPeriod, http.StatusBadRequest, "validation-error"},
		{"not connected", connections.ErrNotConnected, http.StatusNotFound, "not-found"},
		{"reauthorization", connections.ErrReauthorizationRequired, http.StatusConflict, "reconnect-required"},
		{"credentials missing", connections.ErrCredentialsMissing, http.StatusConflict, "reconnect-required"},
		{"no tenants", connections.ErrNoAuthorizedTenants, http.StatusConflict, "no-organisation"},
		{"transient", connections.ErrTokenRefreshTransient, http.StatusBadGateway, "upstream-unavailable"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "internal-error"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockReporter{
				requestFn: func(context.Context, service.ReportRequest) (service.ReportResult, error) {
					return service.ReportResult{}, tc.err
				},
			}

			rec := serve(t, svc, requestBody(uuid.New(), "BAS"))
			require.Equal(t, tc.wantStatus, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var details map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
			require.Contains(t, details["type"], tc.wantType)
		})
	}
}
