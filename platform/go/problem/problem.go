// Package problem writes RFC 7807 application/problem+json responses.
package problem

import (
	"encoding/json"
	"net/http"
)

// Well-known problem type URIs surfaced by the API.
const (
	TypeValidation     = "https://taxflow.clearledger.io/problems/validation-error"
	TypeNotFound       = "https://taxflow.clearledger.io/problems/not-found"
	TypeReconnect      = "https://taxflow.clearledger.io/problems/reconnect-required"
	TypeNoOrganisation = "https://taxflow.clearledger.io/problems/no-organisation"
	TypeUpstream       = "https://taxflow.clearledger.io/problems/upstream-unavailable"
	TypeInternal       = "https://taxflow.clearledger.io/problems/internal-error"
)

// Details is the RFC 7807 body. Remediation carries the user-facing next step
// ("reconnect", "retry", "select organisation") so the UI never shows a bare error.
type Details struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Status      int    `json:"status"`
	Detail      string `json:"detail,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

// Write serialises the problem to the response with the proper content type.
func Write(w http.ResponseWriter, p Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
