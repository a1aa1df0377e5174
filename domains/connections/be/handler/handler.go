// Package handler exposes the connection lifecycle over HTTP.
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

	"github.com/clearledger/taxflow/domains/connections/be/service"
	"github.com/clearledger/taxflow/platform/go/logging"
	"github.com/clearledger/taxflow/platform/go/problem"
)

type operation string

const (
	consentOperation    operation = "startConsent"
	callbackOperation   operation = "completeConsent"
	overviewOperation   operation = "getConnection"
	disconnectOperation operation = "disconnectConnection"
)

// Lifecycle is the service surface the handler depends on.
type Lifecycle interface {
	ConsentURL(companyID uuid.UUID) string
	CompleteConsent(ctx context.Context, state, code string) (uuid.UUID, error)
	Disconnect(ctx context.Context, companyID uuid.UUID) error
	Overview(ctx context.Context, companyID uuid.UUID) (service.ConnectionOverview, error)
}

// Handler wires the connection lifecycle service to the HTTP contract.
type Handler struct {
	svc    Lifecycle
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Lifecycle, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("connections service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the router for the connections surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/xero/consent", h.startConsent)
	r.Get("/xero/callback", h.completeConsent)
	r.Get("/{companyId}", h.overview)
	r.Delete("/{companyId}", h.disconnect)
	return r
}

type consentRequest struct {
	CompanyID uuid.UUID `json:"companyId"`
}

type consentResponse struct {
	ConsentURL string `json:"consentUrl"`
}

func (h *Handler) startConsent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CompanyID == uuid.Nil {
		problem.Write(w, problem.Details{
			Type:   problem.TypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: "companyId is required",
		})
		return
	}

	writeJSON(w, http.StatusOK, consentResponse{ConsentURL: h.svc.ConsentURL(req.CompanyID)})
}

type callbackResponse struct {
	CompanyID uuid.UUID `json:"companyId"`
	Status    string    `json:"status"`
}

func (h *Handler) completeConsent(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		problem.Write(w, problem.Details{
			Type:   problem.TypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: "state and code query parameters are required",
		})
		return
	}

	companyID, err := h.svc.CompleteConsent(r.Context(), state, code)
	if err != nil {
		h.writeError(w, r, err, callbackOperation)
		return
	}

	writeJSON(w, http.StatusOK, callbackResponse{CompanyID: companyID, Status: "connected"})
}

type tenantView struct {
	TenantID    string `json:"tenantId"`
	DisplayName string `json:"displayName"`
}

type overviewResponse struct {
	Status         string       `json:"status"`
	TokenExpiresAt time.Time    `json:"tokenExpiresAt"`
	Tenants        []tenantView `json:"tenants"`
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.companyID(w, r)
	if !ok {
		return
	}

	view, err := h.svc.Overview(r.Context(), companyID)
	if err != nil {
		h.writeError(w, r, err, overviewOperation)
		return
	}

	tenants := make([]tenantView, 0, len(view.Tenants))
	for _, t := range view.Tenants {
		tenants = append(tenants, tenantView{TenantID: t.TenantID, DisplayName: t.DisplayName})
	}
	writeJSON(w, http.StatusOK, overviewResponse{
		Status:         string(view.Status),
		TokenExpiresAt: view.TokenExpiresAt,
		Tenants:        tenants,
	})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.companyID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Disconnect(r.Context(), companyID); err != nil {
		h.writeError(w, r, err, disconnectOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) companyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	companyID, err := uuid.Parse(chi.URLParam(r, "companyId"))
	if err != nil {
		problem.Write(w, problem.Details{
			Type:   problem.TypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: "companyId must be a UUID",
		})
		return uuid.Nil, false
	}
	return companyID, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	details := classifyError(err)

	logger := logging.FromRequest(r, h.logger)
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", details.Status),
		zap.Error(err),
	}
	switch {
	case details.Status >= http.StatusInternalServerError:
		logger.Error("connections operation failed", fields...)
	case details.Status == http.StatusNotFound:
		logger.Info("connection not found", fields...)
	default:
		logger.Warn("connections request rejected", fields...)
	}

	problem.Write(w, details)
}

func classifyError(err error) problem.Details {
	switch {
	case errors.Is(err, service.ErrInvalidState):
		return problem.Details{
			Type:        problem.TypeValidation,
			Title:       "Consent state invalid",
			Status:      http.StatusBadRequest,
			Detail:      "the consent state is unknown or expired",
			Remediation: "restart the connection flow",
		}
	case errors.Is(err, service.ErrNotConnected):
		return problem.Details{
			Type:        problem.TypeNotFound,
			Title:       "Not connected",
			Status:      http.StatusNotFound,
			Detail:      "the company has no provider connection",
			Remediation: "connect a Xero organisation first",
		}
	case errors.Is(err, service.ErrReauthorizationRequired):
		return problem.Details{
			Type:        problem.TypeReconnect,
			Title:       "Reconnect required",
			Status:      http.StatusConflict,
			Detail:      "the provider connection is no longer usable",
			Remediation: "reconnect the Xero organisation",
		}
	case errors.Is(err, service.ErrNoAuthorizedTenants):
		return problem.Details{
			Type:        problem.TypeNoOrganisation,
			Title:       "No organisation authorized",
			Status:      http.StatusConflict,
			Detail:      "the consent granted access to no organisations",
			Remediation: "repeat consent and select an organisation",
		}
	case errors.Is(err, service.ErrTokenRefreshTransient):
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
