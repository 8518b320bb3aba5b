package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/condex/internal/blob/s3"
	"github.com/alanyoungcy/condex/internal/cache/redis"
	"github.com/alanyoungcy/condex/internal/config"
	"github.com/alanyoungcy/condex/internal/custody"
	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/notify"
	"github.com/alanyoungcy/condex/internal/seed"
	"github.com/alanyoungcy/condex/internal/store/mem"
	"github.com/alanyoungcy/condex/internal/store/postgres"
)

// Dependencies bundles the adapters the exchange runs on. Wire fills it from
// real infrastructure in serve mode and from in-process fakes in standalone
// mode.
type Dependencies struct {
	// Stores
	EventStore    domain.EventStore
	ProposalStore domain.ProposalStore
	SnapshotStore domain.SnapshotStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Archiver is nil when object storage is disabled.
	Archiver domain.Archiver

	Custody domain.Custody
	Seeds   domain.SeedSource

	Notifier *notify.Notifier
}

func postgresConfig(cfg *config.Config) postgres.ClientConfig {
	return postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	}
}

// Wire constructs every dependency for cfg.Mode and returns a cleanup that
// releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	seeds, err := seed.NewChainSource()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: seed source: %w", err)
	}
	deps := &Dependencies{
		Custody:  custody.NewJournal(logger),
		Seeds:    seeds,
		Notifier: newNotifier(cfg, logger),
	}

	if strings.EqualFold(cfg.Mode, "standalone") {
		wireMemory(deps)
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgresConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		applied, err := pgClient.RunMigrations(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.InfoContext(ctx, "wire: applied migrations", slog.Any("migrations", applied))
		}
	}

	pool := pgClient.Pool()
	deps.EventStore = postgres.NewEventStore(pool)
	deps.ProposalStore = postgres.NewProposalStore(pool)
	deps.SnapshotStore = postgres.NewSnapshotStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)

	// --- S3 ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "wire: s3 bucket not reachable, archiving may fail",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.ProposalStore,
			deps.AuditStore,
			logger,
		)
	}

	return deps, cleanup, nil
}

func wireMemory(deps *Dependencies) {
	deps.EventStore = mem.NewEventStore()
	deps.ProposalStore = mem.NewProposalStore()
	deps.SnapshotStore = mem.NewSnapshotStore()
	deps.AuditStore = mem.NewAuditStore()
	deps.PriceCache = mem.NewPriceCache()
	deps.RateLimiter = mem.NewRateLimiter()
	deps.LockManager = mem.NewLockManager()
	deps.SignalBus = mem.NewBus()
}

func newNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}

// Migrate applies the embedded schema and returns the migrations it ran.
func Migrate(ctx context.Context, cfg *config.Config) ([]string, error) {
	pgClient, err := postgres.New(ctx, postgresConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("migrate: postgres: %w", err)
	}
	defer pgClient.Close()
	return pgClient.RunMigrations(ctx)
}
