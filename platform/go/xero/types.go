package xero

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenSet is the token endpoint response for both the code exchange and refresh grants.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// ExpiresAt converts the relative expiry into an absolute instant.
func (t TokenSet) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Connection is one row of the identity connections endpoint: an organisation
// the bearer of the access token is authorised to read.
type Connection struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenantId"`
	TenantType     string `json:"tenantType"`
	TenantName     string `json:"tenantName"`
	CreatedDateUTC string `json:"createdDateUtc"`
}

// Report mirrors the provider's named-report envelope after unwrapping the
// top-level Reports array. Rows nest one level: section rows carry data rows.
type Report struct {
	ReportID   string      `json:"ReportID"`
	ReportName string      `json:"ReportName"`
	ReportDate string      `json:"ReportDate"`
	Rows       []ReportRow `json:"Rows"`
}

// ReportRow is either a header, a section (Title + nested Rows), or a data row (Cells).
type ReportRow struct {
	RowType string       `json:"RowType"`
	Title   string       `json:"Title"`
	Cells   []ReportCell `json:"Cells"`
	Rows    []ReportRow  `json:"Rows"`
}

// ReportCell holds a single formatted value.
type ReportCell struct {
	Value string `json:"Value"`
}

// Invoice is the subset of the invoices resource the pipeline consumes.
// Type is ACCREC for sales and ACCPAY for purchases.
type Invoice struct {
	InvoiceID string          `json:"InvoiceID"`
	Type      string          `json:"Type"`
	Status    string          `json:"Status"`
	SubTotal  decimal.Decimal `json:"SubTotal"`
	TotalTax  decimal.Decimal `json:"TotalTax"`
	Total     decimal.Decimal `json:"Total"`
	LineItems []LineItem      `json:"LineItems"`
}

// LineItem is a single invoice line; AccountCode drives fringe-benefit tagging.
type LineItem struct {
	Description string          `json:"Description"`
	AccountCode string          `json:"AccountCode"`
	LineAmount  decimal.Decimal `json:"LineAmount"`
	TaxAmount   decimal.Decimal `json:"TaxAmount"`
}

// Invoice type constants used by the calculator's fallback rules.
const (
	InvoiceTypeSale     = "ACCREC"
	InvoiceTypePurchase = "ACCPAY"
)

type reportEnvelope struct {
	Reports []Report `json:"Reports"`
}

type invoicesEnvelope struct {
	Invoices []Invoice `json:"Invoices"`
}

type connectionsEnvelope []Connection
