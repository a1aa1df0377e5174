package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clearledger/taxflow/platform/go/xero"
)

// Fixed statutory constants. These are applied to computed taxable values,
// never derived from upstream data.
var (
	grossUpType1 = decimal.RequireFromString("2.0802")
	grossUpType2 = decimal.RequireFromString("1.8868")
	fbtRate      = decimal.RequireFromString("0.47")
)

// basFieldCodes in output order.
var basFieldCodes = []string{"G1", "G2", "1A", "1B", "W1", "W2"}

// fasFieldCodes in output order.
var fasFieldCodes = []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8", "A9"}

// Calculator derives BAS and FAS fields from an aggregated dataset. It never
// fails: a dataset with every endpoint down yields all-zero fields with
// "unavailable" provenance, which is a valid, signalled output.
type Calculator struct {
	// FringeAccountCodes tags invoice lines as fringe benefits for the FAS
	// invoice fallback. Defaults to the platform chart-of-accounts FBT codes.
	FringeAccountCodes []string
}

var defaultFringeAccounts = []string{"820", "821", "FBT"}

func (c Calculator) fringeAccounts() map[string]bool {
	codes := c.FringeAccountCodes
	if len(codes) == 0 {
		codes = defaultFringeAccounts
	}
	set := make(map[string]bool, len(codes))
	for _, code := range codes {
		set[strings.ToUpper(code)] = true
	}
	return set
}

// ComputeBAS derives the GST activity statement fields.
// Source priority per field: tax summary row, invoice totals, profit & loss
// approximation (G1/W1 only), then zero with "unavailable".
func (c Calculator) ComputeBAS(ds AggregatedDataset) ComplianceFields {
	out := newFields(KindBAS, ds.Period)

	taxSummary := reportIfSucceeded(ds, EndpointTaxSummary, ds.TaxSummary)
	profitAndLoss := reportIfSucceeded(ds, EndpointProfitAndLoss, ds.ProfitAndLoss)
	invoicesOK := ds.Succeeded(EndpointInvoices)

	salesSub, salesTax := sumInvoices(ds.Invoices, xero.InvoiceTypeSale)
	purchaseSub, purchaseTax := sumInvoices(ds.Invoices, xero.InvoiceTypePurchase)

	for _, code := range basFieldCodes {
		if amount, ok := findLabelledAmount(taxSummary, code); ok {
			out.set(code, amount, SourceTaxSummary)
			continue
		}

		if invoicesOK {
			switch code {
			case "G1":
				out.set(code, salesSub, SourceInvoiceFallback)
				continue
			case "1A":
				out.set(code, salesTax, SourceInvoiceFallback)
				continue
			case "G2":
				out.set(code, purchaseSub, SourceInvoiceFallback)
				continue
			case "1B":
				out.set(code, purchaseTax, SourceInvoiceFallback)
				continue
			}
		}

		switch code {
		case "G1":
			if total, ok := sectionTotal(profitAndLoss, "Total Income", "Total Revenue", "Total Trading Income"); ok {
				out.set(code, total, SourceEstimated)
				continue
			}
		case "W1":
			if wages, ok := rowAmount(profitAndLoss, "Wages and Salaries", "Salaries and Wages"); ok {
				out.set(code, wages, SourceEstimated)
				continue
			}
		}

		out.set(code, decimal.Zero, SourceUnavailable)
	}

	return out
}

// ComputeFAS derives the fringe benefits activity statement fields.
// A1/A2 are the type 1 / type 2 aggregate taxable values (type 1 when a GST
// credit applies, i.e. the line carries tax); the remaining fields are fixed
// transformations of those using the statutory gross-up and FBT rates.
func (c Calculator) ComputeFAS(ds AggregatedDataset) ComplianceFields {
	out := newFields(KindFAS, ds.Period)

	taxSummary := reportIfSucceeded(ds, EndpointTaxSummary, ds.TaxSummary)
	invoicesOK := ds.Succeeded(EndpointInvoices)

	type1, type2 := c.sumFringeLines(ds.Invoices)

	resolveBase := func(code string, fallback decimal.Decimal) (decimal.Decimal, SourceNote) {
		if amount, ok := findLabelledAmount(taxSummary, code); ok {
			return amount, SourceTaxSummary
		}
		if invoicesOK {
			return fallback, SourceInvoiceFallback
		}
		return decimal.Zero, SourceUnavailable
	}

	a1, a1Note := resolveBase("A1", type1)
	a2, a2Note := resolveBase("A2", type2)
	out.set("A1", a1, a1Note)
	out.set("A2", a2, a2Note)

	derivedNote := weakerNote(a1Note, a2Note)

	a8 := a1.Mul(grossUpType1)
	a9 := a2.Mul(grossUpType2)
	a3 := a8.Add(a9)
	a4 := a3.Mul(fbtRate)

	out.set("A3", a3, derivedNote)
	out.set("A4", a4, derivedNote)
	out.set("A5", a4.Div(decimal.NewFromInt(4)), derivedNote)
	out.set("A8", a8, derivedNote)
	out.set("A9", a9, derivedNote)

	for _, code := range []string{"A6", "A7"} {
		if amount, ok := findLabelledAmount(taxSummary, code); ok {
			out.set(code, amount, SourceTaxSummary)
		} else {
			out.set(code, decimal.Zero, SourceUnavailable)
		}
	}

	return out
}

func (c Calculator) sumFringeLines(invoices []xero.Invoice) (type1, type2 decimal.Decimal) {
	accounts := c.fringeAccounts()
	for _, inv := range invoices {
		if inv.Type != xero.InvoiceTypePurchase {
			continue
		}
		for _, line := range inv.LineItems {
			if !accounts[strings.ToUpper(line.AccountCode)] {
				continue
			}
			if line.TaxAmount.IsPositive() {
				type1 = type1.Add(line.LineAmount)
			} else {
				type2 = type2.Add(line.LineAmount)
			}
		}
	}
	return type1, type2
}

func newFields(kind Kind, period Period) ComplianceFields {
	return ComplianceFields{
		Kind:        kind,
		Period:      period,
		Fields:      make(map[string]decimal.Decimal),
		SourceNotes: make(map[string]SourceNote),
	}
}

func (f ComplianceFields) set(code string, amount decimal.Decimal, note SourceNote) {
	f.Fields[code] = amount.Round(2)
	f.SourceNotes[code] = note
}

// noteRank orders provenance from strongest to weakest.
var noteRank = map[SourceNote]int{
	SourceTaxSummary:      0,
	SourceInvoiceFallback: 1,
	SourceEstimated:       2,
	SourceUnavailable:     3,
}

// weakerNote returns the less trustworthy of two provenance notes; a value
// derived from two sources is only as good as its weakest input.
func weakerNote(a, b SourceNote) SourceNote {
	if noteRank[a] >= noteRank[b] {
		return a
	}
	return b
}

func reportIfSucceeded(ds AggregatedDataset, endpoint string, report *xero.Report) *xero.Report {
	if !ds.Succeeded(endpoint) {
		return nil
	}
	return report
}

func sumInvoices(invoices []xero.Invoice, invoiceType string) (subTotal, tax decimal.Decimal) {
	for _, inv := range invoices {
		if inv.Type != invoiceType {
			continue
		}
		subTotal = subTotal.Add(inv.SubTotal)
		tax = tax.Add(inv.TotalTax)
	}
	return subTotal, tax
}

// findLabelledAmount scans a named report for a data row whose label carries
// the field code, either bare ("G1") or parenthesised ("Total sales (G1)"),
// and returns the row's last-cell amount.
func findLabelledAmount(report *xero.Report, code string) (decimal.Decimal, bool) {
	if report == nil {
		return decimal.Decimal{}, false
	}
	var found decimal.Decimal
	ok := walkRows(report.Rows, func(label string, cells []xero.ReportCell) bool {
		upper := strings.ToUpper(label)
		if upper != strings.ToUpper(code) && !strings.Contains(upper, "("+strings.ToUpper(code)+")") {
			return false
		}
		amount, parsed := parseAmount(lastCellValue(cells))
		if !parsed {
			return false
		}
		found = amount
		return true
	})
	return found, ok
}

// sectionTotal finds a summary row matching any of the given titles.
func sectionTotal(report *xero.Report, titles ...string) (decimal.Decimal, bool) {
	return rowAmount(report, titles...)
}

func rowAmount(report *xero.Report, labels ...string) (decimal.Decimal, bool) {
	if report == nil {
		return decimal.Decimal{}, false
	}
	var found decimal.Decimal
	ok := walkRows(report.Rows, func(label string, cells []xero.ReportCell) bool {
		for _, want := range labels {
			if strings.EqualFold(strings.TrimSpace(label), want) {
				amount, parsed := parseAmount(lastCellValue(cells))
				if !parsed {
					return false
				}
				found = amount
				return true
			}
		}
		return false
	})
	return found, ok
}

// walkRows visits every data row, including rows nested inside sections, and
// stops when visit returns true.
func walkRows(rows []xero.ReportRow, visit func(label string, cells []xero.ReportCell) bool) bool {
	for _, row := range rows {
		if len(row.Cells) > 0 {
			if visit(row.Cells[0].Value, row.Cells) {
				return true
			}
		}
		if len(row.Rows) > 0 {
			if walkRows(row.Rows, visit) {
				return true
			}
		}
	}
	return false
}

func lastCellValue(cells []xero.ReportCell) string {
	if len(cells) < 2 {
		return ""
	}
	return cells[len(cells)-1].Value
}

// parseAmount handles the provider's formatted values: currency symbols,
// thousands separators, and accounting-style parentheses for negatives.
func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, true
}
