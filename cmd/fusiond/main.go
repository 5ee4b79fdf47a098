package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	fhttp "github.com/semaj-12/7M-Quote-sub001/internal/adapter/http"
	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/natskv"
	fnats "github.com/semaj-12/7M-Quote-sub001/internal/adapter/nats"
	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/ndjson"
	fotel "github.com/semaj-12/7M-Quote-sub001/internal/adapter/otel"
	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/postgres"
	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/ristretto"
	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/tiered"
	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/ws"
	"github.com/semaj-12/7M-Quote-sub001/internal/config"
	"github.com/semaj-12/7M-Quote-sub001/internal/domain/calibration"
	"github.com/semaj-12/7M-Quote-sub001/internal/logger"
	"github.com/semaj-12/7M-Quote-sub001/internal/middleware"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/auditstore"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/cache"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/provider"
	"github.com/semaj-12/7M-Quote-sub001/internal/resilience"
	"github.com/semaj-12/7M-Quote-sub001/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			slog.Error("migrate failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"mode", cfg.Ensemble.Mode,
		"audit_backend", cfg.Audit.Backend,
		"ensemble_config_hash", cfg.Ensemble.Hash(),
	)

	shutdownTracer := fotel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(context.Background()) }()

	metrics, err := fotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	ctx := context.Background()

	// --- Infrastructure ---

	var audit auditstore.Store
	switch cfg.Audit.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		audit = postgres.NewStore(pool)
		slog.Info("postgres audit store ready")
	case "ndjson":
		rec, err := ndjson.NewRecorder(cfg.Audit.Dir)
		if err != nil {
			return fmt.Errorf("ndjson recorder: %w", err)
		}
		audit = rec
		slog.Info("ndjson audit recorder ready", "dir", cfg.Audit.Dir)
	default:
		return fmt.Errorf("unknown audit backend %q", cfg.Audit.Backend)
	}

	queue, err := fnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Escalation-response cache: in-process L1 over a NATS KV L2 so
	// replicas share escalation results.
	escCache, closeCache, err := buildEscalationCache(ctx, cfg, queue)
	if err != nil {
		return fmt.Errorf("escalation cache: %w", err)
	}
	defer closeCache()

	// --- Calibration ---

	calib, err := calibration.LoadFromFile(cfg.Calibration.Path)
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	if calib == nil {
		slog.Warn("no calibration file, providers fall back to identity", "path", cfg.Calibration.Path)
	}

	// --- Providers ---

	invokers, err := buildProviders(cfg)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	slog.Info("providers configured", "count", len(invokers))

	// --- Services ---

	hub := ws.NewHub()

	fusionSvc, err := service.NewFusionService(cfg, calib, invokers, audit, queue, hub, metrics, escCache, log)
	if err != nil {
		return fmt.Errorf("fusion service: %w", err)
	}

	cancelRequests, err := fusionSvc.SubscribeRequests(ctx)
	if err != nil {
		return fmt.Errorf("request subscriber: %w", err)
	}
	defer cancelRequests()

	cancelCandidates, err := fusionSvc.SubscribeCandidates(ctx)
	if err != nil {
		return fmt.Errorf("candidate subscriber: %w", err)
	}
	defer cancelCandidates()

	// --- HTTP ---

	handlers := fhttp.NewHandlers(fusionSvc, audit, queue, invokers)

	r := chi.NewRouter()
	r.Use(fhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(fhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(fhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(fotel.HTTPMiddleware(cfg.Logging.Service))

	fhttp.MountRoutes(r, handlers, hub)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.DocumentTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// buildEscalationCache assembles the tiered L1/L2 cache for escalation
// responses. The returned close function releases the L1 cache.
func buildEscalationCache(ctx context.Context, cfg *config.Config, queue *fnats.Queue) (cache.Cache, func(), error) {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, nil, fmt.Errorf("l1: %w", err)
	}

	kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		l1.Close()
		return nil, nil, fmt.Errorf("l2 bucket %q: %w", cfg.Cache.L2Bucket, err)
	}

	return tiered.New(l1, natskv.New(kv), cfg.Cache.L2TTL), l1.Close, nil
}

// buildProviders instantiates every provider adapter named in the config via
// the registry and arms each HTTP client with a shared-settings breaker.
func buildProviders(cfg *config.Config) ([]provider.Invoker, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured (available: %v)", provider.Available())
	}

	var out []provider.Invoker
	for name, settings := range cfg.Providers {
		inv, err := provider.New(name, settings)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		if br, ok := inv.(interface{ SetBreaker(*resilience.Breaker) }); ok {
			br.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		}
		out = append(out, inv)
	}
	return out, nil
}
