package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/campuskit/rollcall/pkg/accounts"
	"github.com/campuskit/rollcall/pkg/api"
	"github.com/campuskit/rollcall/pkg/audit"
	"github.com/campuskit/rollcall/pkg/config"
	"github.com/campuskit/rollcall/pkg/database"
	"github.com/campuskit/rollcall/pkg/idp"
	"github.com/campuskit/rollcall/pkg/invites"
	"github.com/campuskit/rollcall/pkg/observability"
	"github.com/campuskit/rollcall/pkg/settings"
	"github.com/campuskit/rollcall/pkg/webhook"
	"github.com/campuskit/rollcall/pkg/whitelist"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	if err := run(cfg, logger, metrics); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) error {
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	redisClient, err := openRedis(cfg.Redis, logger)
	if err != nil {
		return err
	}

	whitelistService, err := whitelist.NewPostgresService(db)
	if err != nil {
		return err
	}
	accountService, err := accounts.NewPostgresService(db)
	if err != nil {
		return err
	}
	settingsService, err := settings.NewPostgresService(db)
	if err != nil {
		return err
	}
	auditStore, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}

	providerClient := idp.NewClient(cfg.Provider)
	sessionVerifier, err := idp.NewSessionVerifier(ctx, cfg.Provider.IssuerURL)
	if err != nil {
		return err
	}

	dispatcher := invites.NewDispatcher(providerClient, whitelistService, cfg.Provider.SignInURL, metrics, logger)
	materializer := accounts.NewMaterializer(db, accountService, whitelistService, metrics, logger)

	webhookVerifier, err := webhook.NewVerifier(cfg.Provider.WebhookSecret, cfg.Provider.WebhookSkew)
	if err != nil {
		return err
	}
	replayGuard, err := webhook.NewReplayGuard(redisClient, logger)
	if err != nil {
		return err
	}
	processor := webhook.NewProcessor(webhookVerifier, replayGuard, materializer, accountService, auditStore, metrics)

	server := api.NewServer(api.Dependencies{
		Logger:            logger,
		Metrics:           metrics,
		Verifier:          sessionVerifier,
		Accounts:          accountService,
		WhitelistHandlers: whitelist.NewHandlers(whitelistService, dispatcher, auditStore),
		AccountHandlers:   accounts.NewHandlers(accountService, materializer, providerClient, auditStore, metrics),
		WebhookProcessor:  processor,
		SettingsHandlers:  settings.NewHandlers(settingsService),
		AuditHandlers:     audit.NewHandlers(auditStore),
	})

	var appHandler http.Handler = server
	if cfg.Observability.OTelEnabled {
		appHandler = otelhttp.NewHandler(server, "rollcall")
	}

	appServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      appHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	retention := audit.NewRetention(auditStore, audit.DefaultRetention, logger)
	if err := retention.Start(); err != nil {
		return err
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	go collectDBStats(statsCtx, db, metrics)

	sm := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, appServer, healthServer)
	sm.RegisterShutdownFunc(func(context.Context) error {
		stopStats()
		retention.Stop()
		return nil
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	if otelProviders != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Starting rollcall API server on %s", appServer.Addr)
		if err := appServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Starting health server on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(sm.WaitForShutdown)

	return g.Wait()
}

// openRedis connects to Redis when configured. Redis only backs the
// webhook replay guard, so a blank URL is not an error.
func openRedis(cfg config.RedisConfig, logger *observability.Logger) (*redis.Client, error) {
	if cfg.URL == "" {
		logger.Info("Redis not configured, webhook replay guard will use in-process cache only")
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// The replay guard degrades to its local cache, so a down Redis
		// should not block startup.
		logger.WithError(err).Warn("Redis ping failed, continuing with degraded replay guard")
	}

	return client, nil
}

// collectDBStats mirrors connection pool stats into gauges.
func collectDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}
