// Package app assembles the engine from configuration. The server and the
// operator CLI share it so both run the same stores and collaborators.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"

	"celebrate/internal/celebration/dedupe"
	celebrationhandler "celebrate/internal/celebration/handler"
	celebrationmetrics "celebrate/internal/celebration/metrics"
	celebrationservice "celebrate/internal/celebration/service"
	celebrationstore "celebrate/internal/celebration/store"
	"celebrate/internal/compliance"
	"celebrate/internal/cycle"
	"celebrate/internal/legislation"
	"celebrate/internal/limits"
	"celebrate/internal/payment"
	"celebrate/internal/platform/auth"
	"celebrate/internal/platform/config"
	"celebrate/internal/platform/kafka"
	platformmetrics "celebrate/internal/platform/metrics"
	platformredis "celebrate/internal/platform/redis"
	profilehandler "celebrate/internal/profile/handler"
	profileservice "celebrate/internal/profile/service"
	profilestore "celebrate/internal/profile/store"
	"celebrate/internal/resolution"
	resolutionhandler "celebrate/internal/resolution/handler"
	"celebrate/internal/resolution/lock"
	resolutionmetrics "celebrate/internal/resolution/metrics"
	"celebrate/internal/resolution/queue"
	"celebrate/pkg/domain"
	"celebrate/pkg/platform/audit"
	compliancepub "celebrate/pkg/platform/audit/publishers/compliance"
	auditmemory "celebrate/pkg/platform/audit/store/memory"
	auditpg "celebrate/pkg/platform/audit/store/postgres"
	"celebrate/pkg/platform/circuit"
	txcontext "celebrate/pkg/platform/tx"
)

// App holds the wired engine. Optional infrastructure is nil when not
// configured: no database URL means in-memory stores, no Redis URL means
// process-local locks and queues.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	DB           *sql.DB
	Redis        *platformredis.Client
	Kafka        *kgo.Client
	Tokens       *auth.TokenService
	Celebrations *celebrationservice.Service
	Profiles     *profileservice.Service
	Audit        audit.Store
	Trigger      *resolution.Trigger
	Watcher      *resolution.Watcher
	Retries      *resolution.RetryWorker
	Expirer      *resolution.Expirer
	Relay        *kafka.Relay
	RetryQueue   queue.Queue

	celebrationHandler *celebrationhandler.Handler
	profileHandler     *profilehandler.Handler
	resolutionHandler  *resolutionhandler.Handler
	httpMetrics        *platformmetrics.Metrics
}

// Options controls process-wide registrations. Prometheus collectors register
// globally, so only one App per process may enable metrics.
type Options struct {
	Metrics bool
}

// Build connects infrastructure and wires every component.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	if url := a.Config.Database.URL; url != "" {
		db, err := sql.Open("postgres", url)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(a.Config.Database.MaxOpenConns)
		db.SetMaxIdleConns(a.Config.Database.MaxIdleConns)
		db.SetConnMaxLifetime(a.Config.Database.ConnMaxLifetime)
		a.DB = db
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
	}

	rc, err := platformredis.New(ctx, a.Config.Redis)
	if err != nil {
		return err
	}
	a.Redis = rc

	if brokers := a.Config.Kafka.Brokers; len(brokers) > 0 && a.DB != nil {
		client, err := kafka.NewClient(brokers, a.Config.Kafka.Topic)
		if err != nil {
			return err
		}
		a.Kafka = client
		if a.Config.Kafka.CreateTopic {
			if err := kafka.EnsureTopic(ctx, client, a.Config.Kafka.Topic, a.Config.Kafka.Partitions, a.Config.Kafka.Replicas); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *App) wire(opts Options) error {
	cfg := a.Config
	logger := a.Logger

	loc, err := time.LoadLocation(cfg.Limits.TimeZone)
	if err != nil {
		return fmt.Errorf("load time zone: %w", err)
	}
	calendar, err := cycle.OpenCalendar(cfg.Escrow.PrimaryCalendarPath, loc)
	if err != nil {
		return err
	}
	tiers := compliance.NewTiers(
		domain.Money(cfg.Limits.GuestPerDonation),
		domain.Money(cfg.Limits.GuestAnnualCap),
		domain.Money(cfg.Limits.CompliantPerDonation),
		domain.Money(cfg.Limits.CompliantPerElection),
	)
	calculator := limits.NewCalculator(tiers, cycle.NewResolver(loc, cycle.WithCalendar(calendar)))

	gateway, err := a.gateway()
	if err != nil {
		return err
	}
	source, err := a.legislationSource()
	if err != nil {
		return err
	}

	var (
		celebrations celebrationstore.Store
		profiles     profilestore.Store
		deduper      dedupe.Deduper
		txRunner     txcontext.Runner = txcontext.NoopRunner{}
	)
	switch {
	case a.DB != nil:
		celebrations = celebrationstore.NewPostgres(a.DB)
		profiles = profilestore.NewPostgres(a.DB)
		a.Audit = auditpg.New(a.DB)
		deduper = dedupe.NewPostgres(a.DB)
		txRunner = txcontext.NewSQLRunner(a.DB)
	default:
		celebrations = celebrationstore.NewInMemoryStore()
		profiles = profilestore.NewInMemoryStore()
		a.Audit = auditmemory.NewInMemoryStore()
		deduper = dedupe.NewInMemory()
	}
	if a.DB == nil && a.Redis != nil {
		deduper = dedupe.NewRedis(a.Redis.Client, cfg.Worker.WebhookDedupeTTL)
	}

	var locker lock.Locker = lock.NewInMemory()
	a.RetryQueue = queue.NewInMemory()
	if a.Redis != nil {
		locker = lock.NewRedis(a.Redis.Client, cfg.Worker.LockTTL)
		a.RetryQueue = queue.NewRedis(a.Redis.Client)
	}

	pubOpts := []compliancepub.Option{compliancepub.WithLogger(logger)}
	var (
		celebrationMetrics *celebrationmetrics.Metrics
		resolutionMetrics  *resolutionmetrics.Metrics
	)
	if opts.Metrics {
		pubOpts = append(pubOpts, compliancepub.WithMetrics(compliancepub.NewMetrics()))
		celebrationMetrics = celebrationmetrics.New()
		resolutionMetrics = resolutionmetrics.New()
		a.httpMetrics = platformmetrics.New()
	}
	publisher := compliancepub.New(a.Audit, pubOpts...)

	a.Profiles = profileservice.New(profiles,
		profileservice.WithLogger(logger),
		profileservice.WithAuditPublisher(publisher),
	)

	policy := &resolution.RetryPolicy{
		InitialInterval: cfg.Worker.RetryInitialDelay,
		MaxInterval:     cfg.Worker.RetryMaxDelay,
		MaxAttempts:     cfg.Worker.RetryMaxAttempts,
		Jitter:          resolution.DefaultRetryPolicy().Jitter,
	}
	a.Celebrations = celebrationservice.New(celebrations, a.Profiles, calculator, gateway,
		celebrationservice.WithLogger(logger),
		celebrationservice.WithAuditPublisher(publisher),
		celebrationservice.WithMetrics(celebrationMetrics),
		celebrationservice.WithTxRunner(txRunner),
		celebrationservice.WithDeduper(deduper),
		celebrationservice.WithRetryScheduler(resolution.NewRetryScheduler(a.RetryQueue, policy)),
		celebrationservice.WithEscrowWindow(cfg.Escrow.Window),
		celebrationservice.WithTipCeiling(domain.Money(cfg.Limits.TipCeiling)),
	)

	a.Trigger = resolution.NewTrigger(a.Celebrations,
		resolution.WithLogger(logger),
		resolution.WithMetrics(resolutionMetrics),
		resolution.WithLocker(locker),
		resolution.WithConcurrency(cfg.Worker.TriggerConcurrency),
		resolution.WithStaleRetries(cfg.Worker.StaleRetries),
	)
	a.Watcher = resolution.NewWatcher(a.Celebrations, source, a.Trigger,
		resolution.WithWatcherLogger(logger),
		resolution.WithWatcherMetrics(resolutionMetrics),
		resolution.WithWatcherInterval(cfg.Worker.WatchInterval),
	)
	a.Retries = resolution.NewRetryWorker(a.RetryQueue, a.Trigger, policy,
		resolution.WithRetryLogger(logger),
		resolution.WithRetryMetrics(resolutionMetrics),
		resolution.WithRetryInterval(cfg.Worker.RetryInterval),
	)
	a.Expirer = resolution.NewExpirer(a.Celebrations, a.Trigger,
		resolution.WithExpirerLogger(logger),
		resolution.WithExpirerMetrics(resolutionMetrics),
		resolution.WithExpirerInterval(cfg.Worker.ExpireInterval),
	)

	if a.Kafka != nil {
		if outbox, ok := a.Audit.(*auditpg.Store); ok {
			a.Relay = kafka.NewRelay(outbox, a.Kafka, cfg.Kafka.Topic,
				kafka.WithLogger(logger),
				kafka.WithBatchSize(cfg.Kafka.BatchSize),
				kafka.WithInterval(cfg.Kafka.RelayInterval),
			)
		}
	}

	a.Tokens = auth.NewTokenService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	a.celebrationHandler = celebrationhandler.New(a.Celebrations, a.Trigger, logger, cfg.Server.WebhookSecret)
	a.profileHandler = profilehandler.New(a.Profiles, logger)
	a.resolutionHandler = resolutionhandler.New(a.Trigger, logger)
	return nil
}

func (a *App) gateway() (payment.Gateway, error) {
	cfg := a.Config.Payment
	if cfg.BaseURL == "" {
		a.Logger.Warn("no payment provider configured, using the in-memory gateway")
		return payment.NewFakeGateway(), nil
	}
	breaker := circuit.New("payment",
		circuit.WithFailureThreshold(cfg.BreakerThreshold),
		circuit.WithCooldown(cfg.BreakerCooldown),
	)
	return payment.NewHTTPGateway(cfg.BaseURL, cfg.APIKey,
		payment.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		payment.WithRateLimit(cfg.RatePerSecond, cfg.Burst),
		payment.WithBreaker(breaker),
		payment.WithMaxRetries(cfg.MaxRetries),
		payment.WithLogger(a.Logger),
	)
}

func (a *App) legislationSource() (legislation.Source, error) {
	cfg := a.Config.Legislation
	if cfg.BaseURL == "" {
		a.Logger.Warn("no legislative status source configured, every bill stays pending")
		return legislation.NewStaticSource(), nil
	}
	return legislation.NewHTTPSource(cfg.BaseURL, cfg.Timeout, cfg.CacheSize, cfg.CacheTTL)
}

// Health reports whether the configured infrastructure is reachable.
func (a *App) Health(ctx context.Context) error {
	var errs []error
	if a.DB != nil {
		if err := a.DB.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases connections. It is safe on a partially built App.
func (a *App) Close() {
	if a.Kafka != nil {
		a.Kafka.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
