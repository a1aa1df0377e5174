package service

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Aggregate merges endpoint results into a single dataset. Pure shape work:
// successful results are copied through, failed endpoint names land in
// PartialFailures (sorted for determinism). No business logic here.
func Aggregate(companyID uuid.UUID, tenantID string, period Period, results FetchResults, fetchedAt time.Time) AggregatedDataset {
	failures := make([]string, 0, len(results.Failures))
	for endpoint := range results.Failures {
		failures = append(failures, endpoint)
	}
	sort.Strings(failures)

	return AggregatedDataset{
		CompanyID:       companyID,
		TenantID:        tenantID,
		Period:          period,
		TaxSummary:      results.TaxSummary,
		ProfitAndLoss:   results.ProfitAndLoss,
		BalanceSheet:    results.BalanceSheet,
		Invoices:        results.Invoices,
		FetchedAt:       fetchedAt,
		PartialFailures: failures,
	}
}
