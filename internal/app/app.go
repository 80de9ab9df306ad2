// Package app wires configuration, infrastructure, and every domain package
// into the three run modes: api, dispatcher, worker.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/proteus/scrapecore/internal/audit"
	"github.com/proteus/scrapecore/internal/auth"
	"github.com/proteus/scrapecore/internal/blob"
	"github.com/proteus/scrapecore/internal/config"
	"github.com/proteus/scrapecore/internal/httpserver"
	"github.com/proteus/scrapecore/internal/platform"
	"github.com/proteus/scrapecore/internal/store"
	"github.com/proteus/scrapecore/internal/telemetry"
	"github.com/proteus/scrapecore/pkg/candidate"
	"github.com/proteus/scrapecore/pkg/coord"
	"github.com/proteus/scrapecore/pkg/dispatcher"
	"github.com/proteus/scrapecore/pkg/engine"
	"github.com/proteus/scrapecore/pkg/fetch"
	"github.com/proteus/scrapecore/pkg/governance"
	"github.com/proteus/scrapecore/pkg/identity"
	"github.com/proteus/scrapecore/pkg/job"
	"github.com/proteus/scrapecore/pkg/oracle"
	"github.com/proteus/scrapecore/pkg/plugin"
	"github.com/proteus/scrapecore/pkg/proxy"
	"github.com/proteus/scrapecore/pkg/ssrf"
	"github.com/proteus/scrapecore/pkg/worker"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api, dispatcher, worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting scrapecore", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "scrapecore", "dev")
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "dispatcher":
		return runDispatcher(ctx, cfg, logger, db, rdb)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	queries := store.New(db)
	coordStore := coord.New(rdb)

	authenticator := &auth.APIKeyAuthenticator{Store: queries}
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, authenticator)

	auditWriter := audit.NewWriter(queries, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	ssrfGuard := ssrf.New(cfg.SSRFAllowPrivateIPs, cfg.SSRFAllowList, cfg.SSRFDenyList, nil)

	jobHandler := job.NewHandler(queries, coordStore, ssrfGuard, auditWriter, logger)
	srv.APIRouter.Mount("/jobs", jobHandler.Routes())

	auditHandler := audit.NewHandler(queries, logger)
	srv.APIRouter.Mount("/audit-log", auditHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runDispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	queries := store.New(db)
	coordStore := coord.New(rdb)
	policy := enginePolicy(cfg)

	interval, err := time.ParseDuration(cfg.DispatcherPollInterval)
	if err != nil {
		return fmt.Errorf("parsing dispatcher poll interval %q: %w", cfg.DispatcherPollInterval, err)
	}

	d := dispatcher.New(queries, coordStore, policy, logger, interval)
	d.Run(ctx)
	return nil
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	queries := store.New(db)
	coordStore := coord.New(rdb)
	policy := enginePolicy(cfg)

	runners, err := buildRunners(cfg, queries, coordStore, logger)
	if err != nil {
		return fmt.Errorf("building engine runners: %w", err)
	}

	var workers []*worker.Worker
	for _, name := range engine.Tiers {
		for i := 0; i < cfg.WorkersPerEngine; i++ {
			workers = append(workers, worker.New(queries, coordStore, runners[name], name, policy, cfg.RouterMaxDepth, 1, logger))
		}
	}

	done := make(chan struct{})
	for _, w := range workers {
		go func(w *worker.Worker) {
			w.Run(ctx)
		}(w)
	}
	go func() {
		<-ctx.Done()
		close(done)
	}()
	<-done
	logger.Info("workers stopped")
	return nil
}

func enginePolicy(cfg *config.Config) engine.PolicyConfig {
	return engine.PolicyConfig{
		StealthAllowDomains:  cfg.StealthAllowDomains,
		ExternalAllowDomains: cfg.ExternalAllowDomains,
		ExternalAPIKey:       cfg.ExternalAPIKey,
	}
}

// buildRunners constructs one engine.Runner per tier, sharing every
// dependency that doesn't vary by tier.
func buildRunners(cfg *config.Config, queries *store.Queries, coordStore *coord.Store, logger *slog.Logger) (map[string]*engine.Runner, error) {
	var cipher *identity.Cipher
	if cfg.IdentityCipherKeyB64 != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.IdentityCipherKeyB64)
		if err != nil {
			return nil, fmt.Errorf("decoding identity cipher key: %w", err)
		}
		cipher, err = identity.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("building identity cipher: %w", err)
		}
	} else {
		logger.Warn("IDENTITY_CIPHER_KEY not set, cookie reconciliation will fail closed")
	}

	identityMgr := identity.New(queries, coordStore, cipher, identity.Config{
		BindingTTL:    time.Duration(cfg.IdentityBindingTTLSec) * time.Second,
		DecayPerHour:  cfg.IdentityDecayPerHour,
		FailThreshold: cfg.IdentityFailThreshold,
	})

	proxyResolver := proxy.New(queries, proxy.Config{
		DefaultMode: cfg.ProxyDefaultMode,
		GatewayURL:  cfg.ProxyGatewayURL,
	})

	pluginRegistry := plugin.NewRegistry(cfg.PluginAllowList)
	pluginRegistry.Register(plugin.CustomHeadersPlugin{})
	pluginRegistry.Register(plugin.PayloadTransformPlugin{})
	pluginRegistry.Register(plugin.PdfParserPlugin{})
	pluginNames := plugin.NewNameSource(queries)

	candidateRegistry := candidate.New(queries, candidate.Config{
		PromotionThreshold: cfg.CandidatePromotionThreshold,
	})

	govGuard := governance.New(coordStore, governance.Config{
		RateLimitCapacity:     cfg.RateLimitCapacity,
		RateLimitRefillPerSec: cfg.RateLimitRefillPerSec,
		BreakerThreshold:      cfg.BreakerThreshold,
		BreakerWindowSec:      cfg.BreakerWindowSec,
		BreakerCooldownSec:    cfg.BreakerCooldownSec,
	})

	llmBudget := governance.LLMBudgetConfig{
		JobMax:          cfg.LLMJobBudget,
		JobWindowSec:    cfg.LLMJobWindowSec,
		TenantMax:       cfg.LLMTenantBudget,
		TenantWindowSec: cfg.LLMTenantWindowSec,
	}

	oracleClient := oracle.New(govGuard, oracle.Config{
		Endpoint:  cfg.OracleEndpoint,
		APIKey:    cfg.OracleAPIKey,
		MaxChars:  cfg.OracleMaxChars,
		TimeoutMS: cfg.OracleTimeoutMS,
		Budget:    llmBudget,
	})

	ssrfGuard := ssrf.New(cfg.SSRFAllowPrivateIPs, cfg.SSRFAllowList, cfg.SSRFDenyList, nil)
	blobStore := blob.New(cfg.BlobStorageDir)

	deps := engine.Deps{
		Queries:     queries,
		SSRF:        ssrfGuard,
		Identities:  identityMgr,
		Proxies:     proxyResolver,
		Plugins:     pluginRegistry,
		PluginNames: pluginNames,
		Candidates:  candidateRegistry,
		Oracle:      oracleClient,
		Blobs:       blobStore,
		Governance:  govGuard,
		LLMBudget:   llmBudget,
	}

	fetchCfg := fetch.Config{
		MaxBytes:     cfg.FetchMaxBytes,
		TimeoutMS:    cfg.FetchTimeoutMS,
		Retries:      cfg.FetchRetries,
		BackoffMS:    cfg.FetchBackoffMS,
		BackoffMaxMS: cfg.FetchBackoffMaxMS,
	}

	fastTier := engine.NewFastTier(govGuard, fetchCfg, int64(cfg.FetchTimeoutMS))
	stealthTier := engine.NewStealthTier(govGuard, fetchCfg, fetch.DefaultChromeProfile(), cfg.StealthAllowDomains, fastTier, int64(cfg.FetchTimeoutMS))

	browserRunner := fetch.NewBrowserRunner(fetch.BrowserConfig{
		NavTimeoutMS: cfg.BrowserNavTimeoutMS,
		ExecPath:     cfg.BrowserExecPath,
	})
	browserTier := engine.NewBrowserTier(browserRunner, coordStore, governance.Config{
		RateLimitCapacity:     cfg.RateLimitCapacity,
		RateLimitRefillPerSec: cfg.RateLimitRefillPerSec,
		BreakerThreshold:      cfg.BreakerThreshold,
		BreakerWindowSec:      cfg.BreakerWindowSec,
		BreakerCooldownSec:    cfg.BreakerCooldownSec,
	})

	externalTier := engine.NewExternalTier(coordStore, engine.ExternalConfig{
		Endpoint:           cfg.ExternalEndpoint,
		APIKey:             cfg.ExternalAPIKey,
		AllowDomains:       cfg.ExternalAllowDomains,
		BudgetCalls:        cfg.ExternalBudgetCalls,
		BudgetCost:         cfg.ExternalBudgetCost,
		WindowSec:          cfg.ExternalWindowSec,
		BreakerThreshold:   cfg.BreakerThreshold,
		BreakerWindowSec:   cfg.BreakerWindowSec,
		BreakerCooldownSec: cfg.BreakerCooldownSec,
		TimeoutMS:          cfg.FetchTimeoutMS,
	})

	return map[string]*engine.Runner{
		"fast":     engine.NewRunner(deps, fastTier),
		"stealth":  engine.NewRunner(deps, stealthTier),
		"browser":  engine.NewRunner(deps, browserTier),
		"external": engine.NewRunner(deps, externalTier),
	}, nil
}
