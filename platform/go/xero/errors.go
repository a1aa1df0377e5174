package xero

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// OAuthError is a structured error response from the identity token endpoint.
type OAuthError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint %d: %s (%s)", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("token endpoint %d: %s", e.StatusCode, e.Code)
}

// IsAuthRejected reports whether the provider rejected the grant or client
// outright, meaning a new user consent is the only way forward.
func IsAuthRejected(err error) bool {
	var oe *OAuthError
	if !errors.As(err, &oe) {
		return false
	}
	return oe.Code == "invalid_grant" || oe.Code == "invalid_client"
}

// APIError is a non-2xx response from an accounting or identity endpoint.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsTransient reports whether the failure is worth a single retry:
// 5xx responses, 429 throttling, timeouts, and temporary network errors.
// 4xx responses and context cancellation are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode >= 500 || ae.StatusCode == 429
	}
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe.StatusCode >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
