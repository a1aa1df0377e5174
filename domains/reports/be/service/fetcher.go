package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearledger/taxflow/platform/go/logging"
	"github.com/clearledger/taxflow/platform/go/xero"
)

// Accounting is the subset of the upstream client the fetcher calls.
type Accounting interface {
	TaxSummary(ctx context.Context, accessToken, tenantID string, from, to time.Time) (*xero.Report, error)
	ProfitAndLoss(ctx context.Context, accessToken, tenantID string, from, to time.Time) (*xero.Report, error)
	BalanceSheet(ctx context.Context, accessToken, tenantID string, from, to time.Time) (*xero.Report, error)
	Invoices(ctx context.Context, accessToken, tenantID string, from, to time.Time) ([]xero.Invoice, error)
}

const defaultEndpointTimeout = 10 * time.Second

// Fetcher calls every configured endpoint exactly once per Fetch, concurrently
// and independently: one endpoint failing (or timing out) never aborts the
// others. Transient failures get a single retry; 4xx does not.
type Fetcher struct {
	client  Accounting
	timeout time.Duration
	logger  *zap.Logger
}

// NewFetcher constructs a Fetcher; timeout bounds each endpoint attempt.
func NewFetcher(client Accounting, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if client == nil {
		panic("accounting client is required")
	}
	if timeout <= 0 {
		timeout = defaultEndpointTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, timeout: timeout, logger: logger}
}

// Fetch runs the four endpoint calls concurrently and returns whatever
// completed. Caller-level cancellation is soft: pending calls fail into
// Failures and the rest of the pipeline proceeds with partial data.
func (f *Fetcher) Fetch(ctx context.Context, accessToken, tenantID string, period Period) FetchResults {
	results := FetchResults{Failures: make(map[string]error)}

	var mu sync.Mutex
	fail := func(endpoint string, err error) {
		mu.Lock()
		results.Failures[endpoint] = err
		mu.Unlock()
		logging.FromContext(ctx, f.logger).Warn("endpoint fetch failed",
			zap.String("endpoint", endpoint),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}

	// goroutines record their own failures instead of returning errors, so a
	// failing endpoint cannot cancel its siblings
	g := new(errgroup.Group)

	g.Go(func() error {
		report, err := fetchOnce(ctx, f.timeout, func(ctx context.Context) (*xero.Report, error) {
			return f.client.TaxSummary(ctx, accessToken, tenantID, period.From, period.To)
		})
		if err != nil {
			fail(EndpointTaxSummary, err)
			return nil
		}
		mu.Lock()
		results.TaxSummary = report
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		report, err := fetchOnce(ctx, f.timeout, func(ctx context.Context) (*xero.Report, error) {
			return f.client.ProfitAndLoss(ctx, accessToken, tenantID, period.From, period.To)
		})
		if err != nil {
			fail(EndpointProfitAndLoss, err)
			return nil
		}
		mu.Lock()
		results.ProfitAndLoss = report
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		report, err := fetchOnce(ctx, f.timeout, func(ctx context.Context) (*xero.Report, error) {
			return f.client.BalanceSheet(ctx, accessToken, tenantID, period.From, period.To)
		})
		if err != nil {
			fail(EndpointBalanceSheet, err)
			return nil
		}
		mu.Lock()
		results.BalanceSheet = report
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		invoices, err := fetchOnce(ctx, f.timeout, func(ctx context.Context) ([]xero.Invoice, error) {
			return f.client.Invoices(ctx, accessToken, tenantID, period.From, period.To)
		})
		if err != nil {
			fail(EndpointInvoices, err)
			return nil
		}
		mu.Lock()
		results.Invoices = invoices
		mu.Unlock()
		return nil
	})

	_ = g.Wait()
	return results
}

// fetchOnce runs one attempt under the per-endpoint timeout, retrying a single
// time on transient failure while the parent context is still alive.
func fetchOnce[T any](parent context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return call(ctx)
	}

	out, err := attempt()
	if err != nil && xero.IsTransient(err) && parent.Err() == nil {
		return attempt()
	}
	return out, err
}
