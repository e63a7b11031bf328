package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/ghostyield/internal/blob/s3"
	"github.com/alanyoungcy/ghostyield/internal/cache/redis"
	"github.com/alanyoungcy/ghostyield/internal/chain"
	"github.com/alanyoungcy/ghostyield/internal/config"
	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/notify"
	"github.com/alanyoungcy/ghostyield/internal/server/handler"
	"github.com/alanyoungcy/ghostyield/internal/service"
	"github.com/alanyoungcy/ghostyield/internal/store/postgres"
)

// Dependencies bundles everything the run modes need. Optional sinks are nil
// when their config section is disabled.
type Dependencies struct {
	// Chain access
	Pool         *chain.Pool
	PriceReader  *chain.PriceReader
	OracleClient *chain.OracleClient

	// Postgres
	ResultStore domain.ArbResultStore
	UpdateStore domain.OracleUpdateStore

	// Redis
	SnapshotCache domain.SnapshotCache
	EventBus      domain.EventBus
	LockManager   domain.LockManager
	RateLimiter   domain.RateLimiter

	// S3
	Archiver domain.ResultArchiver

	Notifier *notify.Notifier

	// Pingers are reported by the health endpoint.
	Pingers map[string]handler.Pinger
}

// Sinks returns the service fan-out targets. Interface fields stay nil when
// the backing dependency is absent.
func (d *Dependencies) Sinks() service.Sinks {
	s := service.Sinks{
		Results:  d.ResultStore,
		Updates:  d.UpdateStore,
		Archive:  d.Archiver,
		Bus:      d.EventBus,
		Snapshot: d.SnapshotCache,
	}
	if d.Notifier != nil && d.Notifier.Enabled() {
		s.Alerts = d.Notifier
	}
	return s
}

// Wire constructs every dependency the configuration enables and returns a
// cleanup function releasing them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Pingers: map[string]handler.Pinger{}}

	// --- Chain RPC ---
	deps.Pool = chain.NewPool(cfg.RPC.RequestsPerSecond)
	closers = append(closers, deps.Pool.Close)

	priceReader, err := chain.NewPriceReader(deps.Pool)
	if err != nil {
		return fail(fmt.Errorf("wire: price reader: %w", err))
	}
	deps.PriceReader = priceReader

	oracleClient, err := chain.NewOracleClient(deps.Pool)
	if err != nil {
		return fail(fmt.Errorf("wire: oracle client: %w", err))
	}
	deps.OracleClient = oracleClient

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.ResultStore = postgres.NewResultStore(pg.Pool())
		deps.UpdateStore = postgres.NewOracleUpdateStore(pg.Pool())
		deps.Pingers["postgres"] = pg
		logger.InfoContext(ctx, "postgres journal enabled")
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(rc, cfg.Redis.SnapshotTTL.Duration)
		deps.EventBus = redis.NewEventBus(rc, cfg.Redis.StreamMaxLen)
		deps.LockManager = redis.NewLockManager(rc)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.Pingers["redis"] = rc
		logger.InfoContext(ctx, "redis cache and event bus enabled")
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3c), cfg.S3.Prefix)
		deps.Pingers["s3"] = s3Pinger{s3c}
		logger.InfoContext(ctx, "s3 archive enabled", slog.String("bucket", s3c.Bucket()))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	var opts []notify.Option
	if deps.RateLimiter != nil && cfg.Notify.MaxPerMinute > 0 {
		opts = append(opts, notify.WithRateLimit(deps.RateLimiter, cfg.Notify.MaxPerMinute))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger, opts...)

	return deps, cleanup, nil
}

// s3Pinger adapts the bucket health check to handler.Pinger.
type s3Pinger struct{ c *s3blob.Client }

func (p s3Pinger) Ping(ctx context.Context) error { return p.c.Health(ctx) }
