// Package service implements the compliance-report pipeline: concurrent
// endpoint fetch, aggregation with partial-failure tolerance, BAS/FAS field
// calculation with provenance, and advisory anomaly flagging.
package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearledger/taxflow/platform/go/xero"
)

// Errors returned by the pipeline.
var (
	ErrUnknownKind   = errors.New("unknown report kind")
	ErrInvalidPeriod = errors.New("report period is invalid")
)

// Kind selects the statement to compute.
type Kind string

const (
	KindBAS Kind = "BAS"
	KindFAS Kind = "FAS"
)

// Period is the immutable reporting window.
type Period struct {
	From  time.Time
	To    time.Time
	Label string
}

// Valid reports whether the window is well-formed.
func (p Period) Valid() bool {
	return !p.From.IsZero() && !p.To.IsZero() && !p.To.Before(p.From)
}

// Upstream endpoint names as they appear in partialFailures.
const (
	EndpointTaxSummary    = "tax_summary"
	EndpointProfitAndLoss = "profit_and_loss"
	EndpointBalanceSheet  = "balance_sheet"
	EndpointInvoices      = "invoices"
)

// FetchResults is the raw per-endpoint outcome map produced by the Fetcher.
// A nil report (or an entry in Failures) means the endpoint did not succeed;
// an endpoint absent from Failures succeeded, possibly with empty data.
type FetchResults struct {
	TaxSummary    *xero.Report
	ProfitAndLoss *xero.Report
	BalanceSheet  *xero.Report
	Invoices      []xero.Invoice
	Failures      map[string]error
}

// AggregatedDataset is the merged, request-scoped view of all endpoint data.
// It is never persisted; caching it would be an optimisation, not a
// correctness dependency.
type AggregatedDataset struct {
	CompanyID       uuid.UUID
	TenantID        string
	Period          Period
	TaxSummary      *xero.Report
	ProfitAndLoss   *xero.Report
	BalanceSheet    *xero.Report
	Invoices        []xero.Invoice
	FetchedAt       time.Time
	PartialFailures []string
}

// Succeeded reports whether the named endpoint completed without failure.
func (d AggregatedDataset) Succeeded(endpoint string) bool {
	for _, name := range d.PartialFailures {
		if name == endpoint {
			return false
		}
	}
	return true
}

// SourceNote records where a computed field's value came from.
type SourceNote string

const (
	SourceTaxSummary      SourceNote = "tax_summary"
	SourceInvoiceFallback SourceNote = "invoice_fallback"
	SourceEstimated       SourceNote = "estimated"
	SourceUnavailable     SourceNote = "unavailable"
)

// ComplianceFields is the computed statement: field code -> amount, plus
// per-field provenance.
type ComplianceFields struct {
	Kind        Kind
	Period      Period
	Fields      map[string]decimal.Decimal
	SourceNotes map[string]SourceNote
}

// AnomalyFlag marks a field value as worth reviewing. Advisory only; a flagged
// report is still a valid report.
type AnomalyFlag struct {
	FieldCode string `json:"fieldCode"`
	Severity  string `json:"severity"`
	Reason    string `json:"reason"`
}

// Flag severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
