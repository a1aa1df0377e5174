package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	connectionshandler "github.com/clearledger/taxflow/domains/connections/be/handler"
	connectionsrepo "github.com/clearledger/taxflow/domains/connections/be/repo"
	connectionsservice "github.com/clearledger/taxflow/domains/connections/be/service"
	reportshandler "github.com/clearledger/taxflow/domains/reports/be/handler"
	reportsservice "github.com/clearledger/taxflow/domains/reports/be/service"

	"github.com/clearledger/taxflow/contracts"
	platformlogging "github.com/clearledger/taxflow/platform/go/logging"
	platformmiddleware "github.com/clearledger/taxflow/platform/go/middleware"
	"github.com/clearledger/taxflow/platform/go/persistence"
	"github.com/clearledger/taxflow/platform/go/secrets"
	"github.com/clearledger/taxflow/platform/go/xero"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"45s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`

	AuthProvider   string `env:"AUTH_PROVIDER" envDefault:"hmac"`
	AuthHMACSecret string `env:"AUTH_HMAC_SECRET"`

	// SecretsKey is the base64-encoded 32-byte AES key sealing tokens at rest.
	SecretsKey string `env:"SECRETS_KEY,required"`

	XeroClientID     string   `env:"XERO_CLIENT_ID"`
	XeroClientSecret string   `env:"XERO_CLIENT_SECRET"`
	XeroRedirectURI  string   `env:"XERO_REDIRECT_URI,required"`
	XeroScopes       []string `env:"XERO_SCOPES" envDefault:"offline_access accounting.reports.read accounting.transactions.read" envSeparator:" "`
	XeroAuthorizeURL string   `env:"XERO_AUTHORIZE_URL" envDefault:"https://login.xero.com/identity/connect/authorize"`
	XeroTokenURL     string   `env:"XERO_TOKEN_URL" envDefault:"https://identity.xero.com/connect/token"`
	XeroIdentityURL  string   `env:"XERO_IDENTITY_URL"`
	XeroAPIURL       string   `env:"XERO_API_URL"`

	EndpointTimeout time.Duration `env:"ENDPOINT_TIMEOUT" envDefault:"10s"`
	ReportDeadline  time.Duration `env:"REPORT_DEADLINE" envDefault:"30s"`

	// AnomalyThresholdsPath points at a JSON rule file; compiled defaults apply when empty.
	AnomalyThresholdsPath string `env:"ANOMALY_THRESHOLDS_PATH"`

	// FringeAccountCodes tags invoice lines as fringe benefits for the FAS fallback.
	FringeAccountCodes []string `env:"FRINGE_ACCOUNT_CODES" envSeparator:","`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	box, err := secrets.NewBoxFromBase64(strings.TrimSpace(cfg.SecretsKey))
	if err != nil {
		logger.Fatal("init secrets box", zap.Error(err))
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.Bootstrap(ctx, pool); err != nil {
		logger.Fatal("bootstrap database schema", zap.Error(err))
	}

	connectionStore, err := persistence.NewConnectionStore(pool)
	if err != nil {
		logger.Fatal("init connection store", zap.Error(err))
	}
	tenantStore, err := persistence.NewAuthorizedTenantStore(pool)
	if err != nil {
		logger.Fatal("init authorized tenant store", zap.Error(err))
	}

	xeroClient := xero.NewClient(xero.Config{
		IdentityBaseURL: cfg.XeroIdentityURL,
		APIBaseURL:      cfg.XeroAPIURL,
		Timeout:         cfg.EndpointTimeout,
	})

	connectionsRepo := connectionsrepo.NewPostgresRepository(connectionStore, tenantStore, box)
	connectionsService := connectionsservice.New(connectionsRepo, xeroClient, connectionsservice.Config{
		Fallback: connectionsservice.FallbackCredentials{
			ClientID:     cfg.XeroClientID,
			ClientSecret: cfg.XeroClientSecret,
		},
		AuthorizeURL: cfg.XeroAuthorizeURL,
		TokenURL:     cfg.XeroTokenURL,
		RedirectURI:  cfg.XeroRedirectURI,
		Scopes:       cfg.XeroScopes,
	}, logger)
	connectionsHTTPHandler := connectionshandler.New(connectionsService, logger)

	thresholds := reportsservice.DefaultThresholds()
	if cfg.AnomalyThresholdsPath != "" {
		thresholds, err = reportsservice.LoadThresholds(cfg.AnomalyThresholdsPath)
		if err != nil {
			logger.Fatal("load anomaly thresholds", zap.String("path", cfg.AnomalyThresholdsPath), zap.Error(err))
		}
	}

	fetcher := reportsservice.NewFetcher(xeroClient, cfg.EndpointTimeout, logger)
	calculator := reportsservice.Calculator{FringeAccountCodes: cfg.FringeAccountCodes}
	reportsService := reportsservice.New(connectionsService, fetcher, calculator, thresholds, cfg.ReportDeadline, logger)
	reportsHTTPHandler := reportshandler.New(reportsService, logger)

	authMiddleware := buildAuthMiddleware(cfg, logger)

	specValidator, err := platformmiddleware.NewSpecValidator(contracts.ComplianceYAML)
	if err != nil {
		logger.Fatal("build openapi validator", zap.Error(err))
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// ---- Swagger UI + OpenAPI document (public) ----
	registerDocsRoutes(rootRouter)

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Use(specValidator)

	apiRouter.Mount("/connections", connectionsHTTPHandler.Routes())
	apiRouter.Mount("/reports", reportsHTTPHandler.Routes())

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
