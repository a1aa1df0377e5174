package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	connections "github.com/clearledger/taxflow/domains/connections/be/service"
	"github.com/clearledger/taxflow/platform/go/logging"
)

// Connections is the connection-lifecycle surface the pipeline depends on.
type Connections interface {
	GetValidAccessToken(ctx context.Context, companyID uuid.UUID) (string, error)
	ResolveTenant(ctx context.Context, companyID uuid.UUID, requestedTenantID string) (connections.AuthorizedTenant, error)
}

// ReportRequest is the report-request boundary input.
type ReportRequest struct {
	CompanyID         uuid.UUID
	Kind              Kind
	Period            Period
	RequestedTenantID string
}

// ReportResult is handed off verbatim to the narrative and PDF consumers.
type ReportResult struct {
	TenantID        string
	Fields          ComplianceFields
	Anomalies       []AnomalyFlag
	PartialFailures []string
}

// Service orchestrates the pipeline: token, tenant, fetch, aggregate,
// calculate, flag. Token refresh strictly precedes any endpoint fetch; the
// four fetches then run concurrently under a soft overall deadline.
type Service struct {
	connections Connections
	fetcher     *Fetcher
	calculator  Calculator
	thresholds  Thresholds
	deadline    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

const defaultOverallDeadline = 30 * time.Second

// New constructs the pipeline service.
func New(conns Connections, fetcher *Fetcher, calculator Calculator, thresholds Thresholds, deadline time.Duration, logger *zap.Logger) *Service {
	if conns == nil {
		panic("connections service is required")
	}
	if fetcher == nil {
		panic("fetcher is required")
	}
	if deadline <= 0 {
		deadline = defaultOverallDeadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		connections: conns,
		fetcher:     fetcher,
		calculator:  calculator,
		thresholds:  thresholds,
		deadline:    deadline,
		logger:      logger,
		now:         time.Now,
	}
}

// RequestComplianceReport runs the full pipeline for one company and period.
// Only credential and tenant failures abort; endpoint failures degrade to
// partial output with provenance, never to an error.
func (s *Service) RequestComplianceReport(ctx context.Context, req ReportRequest) (ReportResult, error) {
	if req.Kind != KindBAS && req.Kind != KindFAS {
		return ReportResult{}, fmt.Errorf("%q: %w", req.Kind, ErrUnknownKind)
	}
	if !req.Period.Valid() {
		return ReportResult{}, ErrInvalidPeriod
	}

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	token, err := s.connections.GetValidAccessToken(ctx, req.CompanyID)
	if err != nil {
		return ReportResult{}, err
	}

	tenant, err := s.connections.ResolveTenant(ctx, req.CompanyID, req.RequestedTenantID)
	if err != nil {
		return ReportResult{}, err
	}

	results := s.fetcher.Fetch(ctx, token, tenant.TenantID, req.Period)
	dataset := Aggregate(req.CompanyID, tenant.TenantID, req.Period, results, s.now())

	var fields ComplianceFields
	switch req.Kind {
	case KindBAS:
		fields = s.calculator.ComputeBAS(dataset)
	case KindFAS:
		fields = s.calculator.ComputeFAS(dataset)
	}

	anomalies := Flag(fields, nil, s.thresholds)

	logger := logging.FromContext(ctx, s.logger)
	logger.Info("compliance report computed",
		zap.String("company_id", req.CompanyID.String()),
		zap.String("tenant_id", tenant.TenantID),
		zap.String("kind", string(req.Kind)),
		zap.String("period", req.Period.Label),
		zap.Strings("partial_failures", dataset.PartialFailures),
		zap.Int("anomalies", len(anomalies)),
	)

	return ReportResult{
		TenantID:        tenant.TenantID,
		Fields:          fields,
		Anomalies:       anomalies,
		PartialFailures: dataset.PartialFailures,
	}, nil
}
