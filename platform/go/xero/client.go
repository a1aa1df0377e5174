// Package xero is the transport-level client for the upstream accounting
// provider: the identity service (token + connections endpoints) and the
// accounting API (named reports + invoices). Retry policy lives with the
// callers; this package does one request per call and classifies failures.
package xero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultIdentityBaseURL = "https://identity.xero.com"
	defaultAPIBaseURL      = "https://api.xero.com"
	defaultTimeout         = 30 * time.Second

	tenantHeader = "Xero-Tenant-Id"
	dateLayout   = "2006-01-02"
)

// Config captures the client knobs; zero values fall back to production defaults.
type Config struct {
	IdentityBaseURL string
	APIBaseURL      string
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Client performs authenticated calls against the provider.
type Client struct {
	identityBaseURL string
	apiBaseURL      string
	http            *http.Client
}

// NewClient builds a Client from config.
func NewClient(cfg Config) *Client {
	identity := strings.TrimRight(cfg.IdentityBaseURL, "/")
	if identity == "" {
		identity = defaultIdentityBaseURL
	}
	api := strings.TrimRight(cfg.APIBaseURL, "/")
	if api == "" {
		api = defaultAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{identityBaseURL: identity, apiBaseURL: api, http: httpClient}
}

// RefreshToken exchanges a refresh token for a new token pair.
// Grant rejections come back as *OAuthError so callers can distinguish
// "re-consent required" from transport trouble.
func (c *Client) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.tokenRequest(ctx, clientID, clientSecret, form)
}

func (c *Client) tokenRequest(ctx context.Context, clientID, clientSecret string, form url.Values) (TokenSet, error) {
	endpoint := c.identityBaseURL + "/connect/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenSet{}, err
	}
	req.SetBasicAuth(clientID, clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return TokenSet{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenSet{}, err
	}

	if resp.StatusCode != http.StatusOK {
		oe := &OAuthError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, oe); jsonErr != nil || oe.Code == "" {
			return TokenSet{}, &APIError{StatusCode: resp.StatusCode, Endpoint: "connect/token", Body: trim(body)}
		}
		return TokenSet{}, oe
	}

	var tokens TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		return TokenSet{}, fmt.Errorf("decode token response: %w", err)
	}
	return tokens, nil
}

// Connections lists the organisations the access token is authorised for.
func (c *Client) Connections(ctx context.Context, accessToken string) ([]Connection, error) {
	body, err := c.get(ctx, c.identityBaseURL+"/connections", accessToken, "", nil)
	if err != nil {
		return nil, err
	}
	var conns connectionsEnvelope
	if err := json.Unmarshal(body, &conns); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}
	return conns, nil
}

// TaxSummary fetches the GST tax summary report for the period.
func (c *Client) TaxSummary(ctx context.Context, accessToken, tenantID string, from, to time.Time) (*Report, error) {
	return c.report(ctx, accessToken, tenantID, "TaxSummary", url.Values{
		"fromDate": {from.Format(dateLayout)},
		"toDate":   {to.Format(dateLayout)},
	})
}

// ProfitAndLoss fetches the profit and loss report for the period.
func (c *Client) ProfitAndLoss(ctx context.Context, accessToken, tenantID string, from, to time.Time) (*Report, error) {
	return c.report(ctx, accessToken, tenantID, "ProfitAndLoss", url.Values{
		"fromDate": {from.Format(dateLayout)},
		"toDate":   {to.Format(dateLayout)},
	})
}

// BalanceSheet fetches the balance sheet as at the period end.
func (c *Client) BalanceSheet(ctx context.Context, accessToken, tenantID string, _, to time.Time) (*Report, error) {
	return c.report(ctx, accessToken, tenantID, "BalanceSheet", url.Values{
		"date": {to.Format(dateLayout)},
	})
}

func (c *Client) report(ctx context.Context, accessToken, tenantID, name string, params url.Values) (*Report, error) {
	body, err := c.get(ctx, c.apiBaseURL+"/api.xro/2.0/Reports/"+name, accessToken, tenantID, params)
	if err != nil {
		return nil, err
	}
	var envelope reportEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s report: %w", name, err)
	}
	if len(envelope.Reports) == 0 {
		return nil, &APIError{StatusCode: http.StatusOK, Endpoint: "Reports/" + name, Body: "empty report envelope"}
	}
	return &envelope.Reports[0], nil
}

// Invoices lists authorised invoices dated within the period.
func (c *Client) Invoices(ctx context.Context, accessToken, tenantID string, from, to time.Time) ([]Invoice, error) {
	where := fmt.Sprintf(
		"Date >= DateTime(%d, %02d, %02d) && Date <= DateTime(%d, %02d, %02d) && Status == \"AUTHORISED\"",
		from.Year(), from.Month(), from.Day(), to.Year(), to.Month(), to.Day(),
	)
	body, err := c.get(ctx, c.apiBaseURL+"/api.xro/2.0/Invoices", accessToken, tenantID, url.Values{"where": {where}})
	if err != nil {
		return nil, err
	}
	var envelope invoicesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode invoices: %w", err)
	}
	return envelope.Invoices, nil
}

func (c *Client) get(ctx context.Context, endpoint, accessToken, tenantID string, params url.Values) ([]byte, error) {
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if tenantID != "" {
		req.Header.Set(tenantHeader, tenantID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: trim(body)}
	}
	return body, nil
}

func trim(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
