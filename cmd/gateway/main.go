// Command gateway is the long-running process wiring the Postgres send
// queue, the provider drivers, and every background worker together: it
// claims and sends outbound mail, ingests provider feedback, delivers
// customer webhooks, and runs the periodic reputation, sandbox, and SLO
// sweeps, each singleton-guarded across replicas by
// internal/pkg/distlock.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	_ "github.com/lib/pq"

	"github.com/ignite/gatewayd/internal/config"
	"github.com/ignite/gatewayd/internal/database"
	"github.com/ignite/gatewayd/internal/dlqadmin"
	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/feedback"
	"github.com/ignite/gatewayd/internal/feedbackqueue"
	"github.com/ignite/gatewayd/internal/ippool"
	"github.com/ignite/gatewayd/internal/pkg/distlock"
	"github.com/ignite/gatewayd/internal/pkg/logger"
	"github.com/ignite/gatewayd/internal/provider"
	"github.com/ignite/gatewayd/internal/queue/pgqueue"
	"github.com/ignite/gatewayd/internal/ratelimit"
	"github.com/ignite/gatewayd/internal/repository/postgres"
	"github.com/ignite/gatewayd/internal/reputation"
	"github.com/ignite/gatewayd/internal/sandbox"
	"github.com/ignite/gatewayd/internal/sendpipeline"
	"github.com/ignite/gatewayd/internal/sendworker"
	"github.com/ignite/gatewayd/internal/slo"
	"github.com/ignite/gatewayd/internal/slometrics"
	"github.com/ignite/gatewayd/internal/validation"
	"github.com/ignite/gatewayd/internal/webhookdelivery"
)

// tenantResolver adapts the Postgres tenant and domain repos to
// provider.TenantResolver.
type tenantResolver struct {
	tenants domain.TenantStore
	domains domain.DomainStore
}

func (r tenantResolver) Get(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return r.tenants.Get(ctx, tenantID)
}

func (r tenantResolver) GetDomain(ctx context.Context, domainID string) (*domain.Domain, error) {
	return r.domains.Get(ctx, domainID)
}

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Error("load config failed", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("open database failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		logger.Error("ping database failed", "error", err.Error())
		os.Exit(1)
	}
	cancelPing()

	if mg, err := database.NewMigrator(db, "file://migrations"); err != nil {
		logger.Error("build migrator failed", "error", err.Error())
	} else if err := mg.Up(); err != nil {
		logger.Error("apply migrations failed", "error", err.Error())
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.Addr(),
		Password: cfg.Queue.Password,
		DB:       cfg.Queue.DB,
	})
	defer redisClient.Close()

	// Repositories.
	emailLogs := postgres.NewEmailLogRepo(db)
	outbox := postgres.NewOutboxRepo(db)
	recipients := postgres.NewRecipientRepo(db)
	ipPools := postgres.NewIPPoolRepo(db)
	tenants := postgres.NewTenantRepo(db)
	domains := postgres.NewDomainRepo(db)
	throttles := postgres.NewThrottleRepo(db)
	webhooks := postgres.NewWebhookRepo(db)
	deadLetters := postgres.NewDeadLetterRepo(db)
	reputationMetrics := postgres.NewReputationRepo(db)
	suppressions := postgres.NewSuppressionRepo(db)

	sendQueue := pgqueue.New(db)

	// Provider drivers.
	resolver := tenantResolver{tenants: tenants, domains: domains}
	var drivers []provider.Driver

	apiDriver, err := provider.NewAPIDriver(provider.APIDriverConfig{
		AccessKey:        cfg.Provider.API.AccessKey,
		SecretKey:        cfg.Provider.API.SecretKey,
		Region:           cfg.Provider.API.Region,
		DefaultFrom:      cfg.Provider.API.FromAddress,
		ConfigurationSet: cfg.Provider.API.ConfigurationSet,
		ChaosSES429:      cfg.Chaos.SES429,
	}, resolver)
	if err != nil {
		logger.Error("build api driver failed", "error", err.Error())
		os.Exit(1)
	}
	drivers = append(drivers, provider.NewCircuitBreaker(apiDriver))

	if cfg.Provider.SMTP.Host != "" {
		smtpDriver, err := provider.NewSMTPDriver(provider.SMTPDriverConfig{
			Host:             cfg.Provider.SMTP.Host,
			Port:             cfg.Provider.SMTP.Port,
			Username:         cfg.Provider.SMTP.Username,
			Password:         cfg.Provider.SMTP.Password,
			Secure:           cfg.Provider.SMTP.Secure,
			FromName:         cfg.Provider.SMTP.FromName,
			FromAddress:      cfg.Provider.SMTP.FromAddress,
			ReturnPathDomain: cfg.Provider.SMTP.ReturnPathDomain,
		})
		if err != nil {
			logger.Error("build smtp driver failed", "error", err.Error())
			os.Exit(1)
		}
		drivers = append(drivers, provider.NewCircuitBreaker(smtpDriver))
	}

	var driver provider.Driver
	if cfg.Provider.Fallback && len(drivers) > 1 {
		if cfg.Provider.Primary == "smtp" {
			drivers[0], drivers[1] = drivers[1], drivers[0]
		}
		driver = provider.NewFallbackSet(drivers...)
	} else if cfg.Provider.Primary == "smtp" && len(drivers) > 1 {
		driver = drivers[1]
	} else {
		driver = drivers[0]
	}

	// Send pipeline.
	gate := validation.NewGate(outbox, recipients)
	limiter := ratelimit.NewMXLimiter(redisClient, nil)
	pools := ippool.NewSelector(ipPools)

	pipelineWorker := sendpipeline.New(sendpipeline.Config{
		Gate:        gate,
		Suppression: suppressions,
		Throttle:    throttles,
		Limiter:     limiter,
		Pools:       pools,
		Driver:      driver,
		Logs:        emailLogs,
		Outbox:      outbox,
		Webhooks:    webhooks,
		DLQ:         deadLetters,
	})

	hostname, _ := os.Hostname()
	pool := sendworker.New(sendQueue, pipelineWorker, hostname,
		cfg.Worker.SendConcurrency, cfg.Worker.ClaimBatchSize, cfg.Worker.PollInterval())

	// Feedback ingest.
	feedbackWorker := feedback.New(feedback.Config{
		Logs:               emailLogs,
		Suppression:        suppressions,
		Tracking:           emailLogs,
		Webhooks:           webhooks,
		EmitTrackingEvents: true,
	})
	feedbackConsumer := feedbackqueue.New(redisClient, feedbackWorker)

	// Webhook delivery.
	webhookWorker := webhookdelivery.New(webhookdelivery.Config{
		Store:  webhooks,
		Client: http.DefaultClient,
		Limit:  rate.Limit(100),
		Burst:  10,
	})

	// Reputation monitor.
	reputationMonitor := reputation.New(reputation.Config{
		Tenants:     tenants,
		Domains:     domains,
		Reputation:  reputationMetrics,
		Suppression: suppressions,
		Throttle:    throttles,
	})

	// Sandbox auto-approval.
	sandboxMonitor := sandbox.New(tenants, emailLogs)

	// SLO controller.
	sloController := slo.New(slo.Config{
		Metrics: slometrics.New(db, 5*time.Minute),
		Pool:    pool,
		Thresholds: slo.Thresholds{
			ErrorRate:   cfg.SLO.ErrorRateThreshold,
			QueueAgeP95: time.Duration(cfg.SLO.QueueAgeP95SecondsMax) * time.Second,
		},
		OriginalConcurrency: cfg.Worker.SendConcurrency,
	})

	// DLQ admin facade (stats logged periodically; replay/remove driven by
	// whatever out-of-process admin tooling calls into it).
	dlq := dlqadmin.New(deadLetters, sendQueue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolDone := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(poolDone)
	}()
	go feedbackConsumer.Run(ctx)
	go runPeriodic(ctx, cfg.Worker.PollInterval(), func(ctx context.Context) {
		if _, err := webhookWorker.ProcessDue(ctx, cfg.Worker.WebhookConcurrency); err != nil {
			logger.Error("webhook delivery sweep failed", "error", err.Error())
		}
	})
	go runLocked(ctx, redisClient, db, "reputation-monitor", time.Hour, func(ctx context.Context) {
		if _, err := reputationMonitor.Run(ctx, time.Now()); err != nil {
			logger.Error("reputation sweep failed", "error", err.Error())
		}
	})
	go runLocked(ctx, redisClient, db, "sandbox-monitor", 24*time.Hour, func(ctx context.Context) {
		if _, err := sandboxMonitor.Run(ctx, time.Now()); err != nil {
			logger.Error("sandbox sweep failed", "error", err.Error())
		}
	})
	go runLocked(ctx, redisClient, db, "slo-controller", cfg.SLO.ProbeInterval(), func(ctx context.Context) {
		if err := sloController.Probe(ctx); err != nil {
			logger.Error("slo probe failed", "error", err.Error())
		}
	})
	go runPeriodic(ctx, 5*time.Minute, func(ctx context.Context) {
		stats, err := dlq.Stats(ctx, time.Now())
		if err != nil {
			logger.Error("dlq stats failed", "error", err.Error())
			return
		}
		logger.Info("dlq stats", "health", string(stats.Health()), "total", stats.Total)
	})

	logger.Info("gateway started",
		"send_concurrency", cfg.Worker.SendConcurrency,
		"provider_primary", cfg.Provider.Primary,
		"provider_fallback", cfg.Provider.Fallback,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight work")

	drainTimeout := time.NewTimer(30 * time.Second)
	defer drainTimeout.Stop()
	select {
	case <-poolDone:
	case <-drainTimeout.C:
		logger.Warn("drain timeout exceeded, exiting with work still in flight")
	}
	logger.Info("gateway stopped")
}

// runPeriodic runs fn every interval until ctx is cancelled.
func runPeriodic(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// runLocked runs fn every interval, guarded by a distributed lock so only
// one replica performs the sweep at a time.
func runLocked(ctx context.Context, redisClient *redis.Client, db *sql.DB, key string, interval time.Duration, fn func(context.Context)) {
	lock := distlock.NewLock(redisClient, db, key, interval/2)
	runPeriodic(ctx, interval, func(ctx context.Context) {
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			logger.Error("acquire lock failed", "key", key, "error", err.Error())
			return
		}
		if !acquired {
			return
		}
		defer lock.Release(ctx)
		fn(ctx)
	})
}
