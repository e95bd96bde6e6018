// Command server runs the findings reconciliation service: scan ingestion,
// finding triage, allowlist management, and diff reporting over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/time/rate"

	apifindings "github.com/leakwatch/leakwatch/internal/api/findings"
	"github.com/leakwatch/leakwatch/internal/api/mux"
	"github.com/leakwatch/leakwatch/internal/api/routes"
	"github.com/leakwatch/leakwatch/internal/app/reconcile"
	"github.com/leakwatch/leakwatch/internal/config"
	"github.com/leakwatch/leakwatch/internal/config/fileloader"
	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/internal/infra/notify/kafka"
	"github.com/leakwatch/leakwatch/internal/infra/storage/findings/postgres"
	"github.com/leakwatch/leakwatch/pkg/common"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
	"github.com/leakwatch/leakwatch/pkg/common/otel"
)

const serviceType = "server"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("LEAKWATCH-%s", hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(os.Getenv("LEAKWATCH_CONFIG"))
	if err != nil {
		log.Error(ctx, "failed to load configuration", "error", err)
		os.Exit(1)
	}

	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
		},
		Probability: cfg.Telemetry.SamplingRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		log.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(cfg.Telemetry.ServiceName)

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			log.Error(ctx, "Error shutting down health server", "error", err)
		}
	}()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.ConnString())
	if err != nil {
		log.Error(ctx, "failed to parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool); err != nil {
		log.Error(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "Migrations applied successfully. Starting application...")

	findingStore := postgres.NewFindingStore(pool, tracer)
	scanStore := postgres.NewScanStore(pool, tracer)
	allowlistStore := postgres.NewAllowlistStore(pool, tracer)
	reportStore := postgres.NewReportStore(pool, tracer)

	severities := findings.DefaultSeverityMap()
	if cfg.PolicyPath != "" {
		policy, err := fileloader.NewFileLoader(cfg.PolicyPath).Load(ctx)
		if err != nil {
			log.Error(ctx, "failed to load scan policy", "error", err, "path", cfg.PolicyPath)
			os.Exit(1)
		}
		if severities, err = policy.SeverityMap(); err != nil {
			log.Error(ctx, "invalid severity overrides", "error", err)
			os.Exit(1)
		}
		if err := seedAllowlist(ctx, allowlistStore, policy); err != nil {
			log.Error(ctx, "failed to seed allowlist", "error", err)
			os.Exit(1)
		}
	}

	var publisher findings.TransitionPublisher = nopPublisher{}
	if cfg.Kafka.Enabled() {
		kafkaPublisher, err := kafka.ConnectPublisher(&kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: svcName,
		}, log, tracer)
		if err != nil {
			log.Error(ctx, "failed to connect kafka publisher", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Error(ctx, "Failed to close kafka publisher", "error", err)
			}
		}()
		publisher = kafkaPublisher
	}

	pipeline := reconcile.NewPipeline(severities, cfg.Reconcile.Workers, log, tracer)
	reconciler := reconcile.NewReconciler(
		findingStore, scanStore, allowlistStore, reportStore,
		publisher, pipeline, cfg.Reconcile.MaxCommitRetries, log, tracer,
	)
	triage := reconcile.NewTriage(findingStore, allowlistStore, log, tracer)

	apiMetrics, err := apifindings.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Error(ctx, "failed to create api metrics", "error", err)
		os.Exit(1)
	}

	apiService := apifindings.NewService(
		log, reconciler, triage,
		findingStore, scanStore, allowlistStore, reportStore,
		apiMetrics,
	)

	handler := mux.WebAPI(mux.Config{
		Build:          build,
		Log:            log,
		Tracer:         tracer,
		FindingService: apiService,
		ScanLimiter:    rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.Burst),
		Ready:          pool.Ping,
	}, routes.Routes())

	server := &http.Server{
		Addr:         cfg.Server.Host,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "Starting API server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ready.Store(true)
	log.Info(ctx, "Service initialized")

	select {
	case sig := <-sigCh:
		log.Info(ctx, "Received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "Failed to shutdown API server", "error", err)
			_ = server.Close()
		}

	case err := <-errCh:
		log.Error(ctx, "API server error", "error", err)
		os.Exit(1)
	}
}

// build is set at link time.
var build = "develop"

// nopPublisher drops transition events when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, []findings.TransitionEvent) error { return nil }

// seedAllowlist creates the policy's global entries that do not exist yet.
// Matching is by kind and pattern so restarts stay idempotent.
func seedAllowlist(ctx context.Context, store findings.AllowlistRepository, policy *config.ScanPolicy) error {
	existing, err := store.GetEffective(ctx, uuid.Nil)
	if err != nil {
		return fmt.Errorf("loading existing entries: %w", err)
	}

	present := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		if e.Scope() == findings.ScopeGlobal {
			present[e.Kind().String()+"\x00"+e.Pattern()] = struct{}{}
		}
	}

	now := time.Now().UTC()
	for _, spec := range policy.Allowlist {
		if _, ok := present[spec.Kind+"\x00"+spec.Pattern]; ok {
			continue
		}
		entry := findings.NewAllowlistEntry(
			findings.ParseAllowlistKind(spec.Kind), findings.ScopeGlobal,
			nil, spec.Pattern, spec.Reason, now,
		)
		if err := store.Create(ctx, entry); err != nil {
			return fmt.Errorf("creating entry %q: %w", spec.Pattern, err)
		}
	}
	return nil
}

// runMigrations applies all up migrations from the migrations directory
// using a connection borrowed from the pool.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("could not acquire connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	migrationsPath := os.Getenv("LEAKWATCH_MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://db/migrations"
	}
	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}
