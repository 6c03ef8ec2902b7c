// Package app wires configuration, infrastructure clients, and the
// engine's components together and runs the selected mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cloudsentinel/riskguard/internal/authn"
	"github.com/cloudsentinel/riskguard/internal/bus"
	"github.com/cloudsentinel/riskguard/internal/config"
	"github.com/cloudsentinel/riskguard/internal/httpapi"
	"github.com/cloudsentinel/riskguard/internal/platform"
	"github.com/cloudsentinel/riskguard/internal/telemetry"
	"github.com/cloudsentinel/riskguard/pkg/alert"
	"github.com/cloudsentinel/riskguard/pkg/anomaly"
	"github.com/cloudsentinel/riskguard/pkg/broadcast"
	"github.com/cloudsentinel/riskguard/pkg/cache"
	"github.com/cloudsentinel/riskguard/pkg/event"
	"github.com/cloudsentinel/riskguard/pkg/identity"
	"github.com/cloudsentinel/riskguard/pkg/org"
	"github.com/cloudsentinel/riskguard/pkg/profile"
	"github.com/cloudsentinel/riskguard/pkg/resource"
	"github.com/cloudsentinel/riskguard/pkg/violation"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api, worker, or
// profile-builder).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting riskguard", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	tp, err := telemetry.InitTracerProvider(ctx, "riskguard", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutting down tracer", "error", err)
			}
		}()
	}

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

	metricsReg := newMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "profile-builder":
		return runProfileBuilder(ctx, cfg, logger, db)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func newMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}

// runAPI serves health/readiness, Prometheus scraping, and the
// authenticated alert-subscription feed.
func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	verifier := authn.NewJWTVerifier(cfg.SecretKey, cfg.JWTAlgorithm)
	alerts := alert.NewStore(db)
	bcast := broadcast.New()
	defer bcast.Shutdown()

	srv := httpapi.NewServer(cfg, logger, db, rdb, metricsReg, verifier, alerts, bcast)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming websocket connections must not be cut off
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runWorker consumes both bus topics and drives the batch buffer/flusher
// that persists events, runs the violation detector, and broadcasts
// resulting alerts (spec §4.1-§4.5).
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	identities := identity.NewStore(db)
	resources := resource.NewStore(db)
	profiles := profile.NewStore(db)
	scorer := anomaly.Load(cfg.AnomalyModelPath, logger)
	detector := violation.NewDetector(scorer)
	bcast := broadcast.New()
	defer bcast.Shutdown()
	preloadCache := cache.New(rdb, logger)

	buffer := bus.NewBuffer(db, detector, profiles, identities, resources, bcast, preloadCache, logger, cfg.BatchSize, cfg.FlushInterval)
	buffer.Start(ctx)
	defer buffer.Close()

	if !cfg.EnableKafkaConsumer {
		logger.Info("bus consumer disabled (ENABLE_KAFKA_CONSUMER=false)")
		<-ctx.Done()
		return nil
	}

	consumer, err := bus.NewConsumer(bus.Config{
		BootstrapServers: cfg.KafkaBootstrapServers,
		GroupID:          cfg.KafkaGroupID,
		EventsTopic:      cfg.KafkaTopic,
		IdentitiesTopic:  cfg.KafkaIdentitiesTopic,
	}, identities, buffer, logger)
	if err != nil {
		return fmt.Errorf("starting bus consumer: %w", err)
	}
	defer consumer.Close()

	logger.Info("worker started", "topics", []string{cfg.KafkaTopic, cfg.KafkaIdentitiesTopic})
	consumer.Run(ctx)
	return nil
}

// runProfileBuilder runs the periodic entity-profile builder for every
// organization (spec §4.6).
func runProfileBuilder(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool) error {
	orgs := org.NewStore(db)
	events := event.NewStore(db)
	profiles := profile.NewStore(db)

	run := func(ctx context.Context, orgID uuid.UUID) error {
		n, err := profile.BuildProfiles(ctx, events, profiles, profile.BuildParams{
			OrganizationID: orgID,
			LookbackDays:   cfg.ProfileLookbackDays,
			Threshold:      cfg.ProfileThreshold,
		})
		if err != nil {
			return err
		}
		logger.Info("profile builder run complete", "organization_id", orgID, "entities", n)
		return nil
	}
	onErr := func(orgID uuid.UUID, err error) {
		logger.Error("profile builder run failed", "organization_id", orgID, "error", err)
	}

	logger.Info("profile builder started", "interval", cfg.ProfileBuildInterval)
	profile.RunPeriodic(ctx, cfg.ProfileBuildInterval, orgs.ListIDs, run, onErr)
	return nil
}
