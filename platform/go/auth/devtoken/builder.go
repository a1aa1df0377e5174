// Package devtoken mints unsigned JWTs for local and CI environments so
// requests can flow through the auth middleware when AUTH_PROVIDER=dev.
package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Params captures the claims required to mint an unsigned JWT. All fields are
// provided by the caller; no environment variables are read so the builder
// stays deterministic for tooling.
type Params struct {
	UserID    string        // user_id/sub/uid (required)
	Email     string        // email claim (required)
	CompanyID string        // companyId claim binding the caller to a company (required)
	IsAdmin   bool          // isAdmin custom claim for backend role checks
	ExpiresIn time.Duration // relative expiry; default 1h if zero
	Issuer    string        // optional override; defaults to taxflow-dev
}

// BuildUnsignedToken returns a JWT string with alg "none" and no signature.
func BuildUnsignedToken(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}
	if strings.TrimSpace(p.CompanyID) == "" {
		return "", errors.New("companyID is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = "taxflow-dev"
	}

	payload := map[string]interface{}{
		"iss":       issuer,
		"auth_time": now.Unix(),
		"user_id":   p.UserID,
		"sub":       p.UserID,
		"iat":       now.Unix(),
		"exp":       now.Add(expiresIn).Unix(),
		"email":     p.Email,
		"isAdmin":   p.IsAdmin,
		"companyId": p.CompanyID,
	}

	header := map[string]interface{}{
		"alg": "none",
		"typ": "JWT",
	}

	headerSegment, err := encodeSegment(header)
	if err != nil {
		return "", err
	}

	payloadSegment, err := encodeSegment(payload)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%s", headerSegment, payloadSegment), nil
}

func encodeSegment(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
