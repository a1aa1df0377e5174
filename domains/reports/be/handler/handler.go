// Package handler exposes compliance-report generation over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	connections "github.com/clearledger/taxflow/domains/connections/be/service"
	"github.com/clearledger/taxflow/domains/reports/be/service"
	"github.com/clearledger/taxflow/platform/go/logging"
	"github.com/clearledger/taxflow/platform/go/problem"
)

// Reporter is the pipeline surface the handler depends on.
type Reporter interface {
	RequestComplianceReport(ctx context.Context, req service.ReportRequest) (service.ReportResult, error)
}

// Handler wires the report pipeline to the HTTP contract.
type Handler struct {
	svc    Reporter
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Reporter, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("reports service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the router for the reports surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.requestReport)
	return r
}

type periodBody struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Label string    `json:"label,omitempty"`
}

type reportRequestBody struct {
	CompanyID uuid.UUID  `json:"companyId"`
	Kind      string     `json:"kind"`
	Period    periodBody `json:"period"`
	TenantID  string     `json:"tenantId,omitempty"`
}

type fieldView struct {
	Amount string `json:"amount"`
	Source string `json:"source"`
}

type reportResponse struct {
	CompanyID       uuid.UUID             `json:"companyId"`
	TenantID        string                `json:"tenantId"`
	Kind            string                `json:"kind"`
	Period          periodBody            `json:"period"`
	Fields          map[string]fieldView  `json:"fields"`
	Anomalies       []service.AnomalyFlag `json:"anomalies"`
	PartialFailures []string              `json:"partialFailures"`
}

func (h *Handler) requestReport(w http.ResponseWriter, r *http.Request) {
	var body reportRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeValidation(w, "request body is not valid JSON")
		return
	}
	if body.CompanyID == uuid.Nil {
		h.writeValidation(w, "companyId is required")
		return
	}

	result, err := h.svc.RequestComplianceReport(r.Context(), service.ReportRequest{
		CompanyID:         body.CompanyID,
		Kind:              service.Kind(body.Kind),
		Period:            service.Period{From: body.Period.From, To: body.Period.To, Label: body.Period.Label},
		RequestedTenantID: body.TenantID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	fields := make(map[string]fieldView, len(result.Fields.Fields))
	for code, amount := range result.Fields.Fields {
		fields[code] = fieldView{
			Amount: amount.StringFixed(2),
			Source: string(result.Fields.SourceNotes[code]),
		}
	}
	anomalies := result.Anomalies
	if anomalies == nil {
		anomalies = []service.AnomalyFlag{}
	}
	failures := result.PartialFailures
	if failures == nil {
		failures = []string{}
	}

	writeJSON(w, http.StatusOK, reportResponse{
		CompanyID:       body.CompanyID,
		TenantID:        result.TenantID,
		Kind:            string(result.Fields.Kind),
		Period:          body.Period,
		Fields:          fields,
		Anomalies:       anomalies,
		PartialFailures: failures,
	})
}

func (h *Handler) writeValidation(w http.ResponseWriter, detail string) {
	problem.Write(w, problem.Details{
		Type:   problem.TypeValidation,
		Title:  "Validation failed",
		Status: http.StatusBadRequest,
		Detail: detail,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	details := classifyError(err)

	logger := logging.FromRequest(r, h.logger)
	fields := []zap.Field{
		zap.String("operation", "requestComplianceReport"),
		zap.Int("status", details.Status),
		zap.Error(err),
	}
	if details.Status >= http.StatusInternalServerError {
		logger.Error("report request failed", fields...)
	} else {
		logger.Warn("report request rejected", fields...)
	}

	problem.Write(w, details)
}

func classifyError(err error) problem.Details {
	switch {
	case errors.Is(err, service.ErrUnknownKind):
		return problem.Details{
			Type:   problem.TypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: "kind must be BAS or FAS",
		}
	case errors.Is(err, service.ErrInvalidPeriod):
		return problem.Details{
			Type:   problem.TypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: "period.from and period.to must form a valid window",
		}
	case errors.Is(err, connections.ErrNotConnected):
		return problem.Details{
			Type:        problem.TypeNotFound,
			Title:       "Not connected",
			Status:      http.StatusNotFound,
			Detail:      "the company has no provider connection",
			Remediation: "connect a Xero organisation first",
		}
	case errors.Is(err, connections.ErrReauthorizationRequired),
		errors.Is(err, connections.ErrCredentialsMissing):
		return problem.Details{
			Type:        problem.TypeReconnect,
			Title:       "Reconnect required",
			Status:      http.StatusConflict,
			Detail:      "the provider connection can no longer produce tokens",
			Remediation: "reconnect the Xero organisation",
		}
	case errors.Is(err, connections.ErrNoAuthorizedTenants):
		return problem.Details{
			Type:        problem.TypeNoOrganisation,
			Title:       "No organisation authorized",
			Status:      http.StatusConflict,
			Detail:      "the connection grants access to no organisations",
			Remediation: "repeat consent and select an organisation",
		}
	case errors.Is(err, connections.ErrTokenRefreshTransient):
		return problem.Details{
			Type:        problem.TypeUpstream,
			Title:       "Provider unavailable",
			Status:      http.StatusBadGateway,
			Detail:      "the provider is temporarily unavailable",
			Remediation: "retry shortly",
		}
	default:
		return problem.Details{
			Type:   problem.TypeInternal,
			Title:  "Internal server error",
			Status: http.StatusInternalServerError,
			Detail: "an unexpected error occurred",
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
