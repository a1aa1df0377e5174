package main

import (
	"net/http"

	"go.uber.org/zap"

	platformauth "github.com/clearledger/taxflow/platform/go/auth"
)

// buildAuthMiddleware constructs the bearer-token middleware with the
// configured verifier.
func buildAuthMiddleware(cfg config, logger *zap.Logger) func(http.Handler) http.Handler {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "hmac":
		if cfg.AuthHMACSecret == "" {
			logger.Fatal("AUTH_HMAC_SECRET required when AUTH_PROVIDER=hmac")
		}
		verify = platformauth.HMACTokenVerifier([]byte(cfg.AuthHMACSecret))
	case "dev":
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("unsupported auth provider", zap.String("provider", cfg.AuthProvider))
	}

	return platformauth.JWT(verify, platformauth.DefaultCredentialExtractor)
}
