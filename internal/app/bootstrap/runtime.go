package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/hrconsult-assistant/internal/catalog"
	appconfig "github.com/wolfman30/hrconsult-assistant/internal/config"
	"github.com/wolfman30/hrconsult-assistant/internal/conversation"
	"github.com/wolfman30/hrconsult-assistant/internal/leads"
	"github.com/wolfman30/hrconsult-assistant/internal/payments"
	"github.com/wolfman30/hrconsult-assistant/internal/session"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

const sessionSweepInterval = time.Minute

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to DATABASE_URL. It returns nil, nil when no
// database is configured so the in-memory repositories are used instead.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, nil
}

// BuildSessionBackend picks where conversation state and transcripts live.
// Redis is used only when requested and reachable.
func BuildSessionBackend(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (session.Store, conversation.Log) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseRedisSessions() && redisClient != nil {
		logger.Info("using redis session backend", "ttl", cfg.SessionTTL.String())
		return session.NewRedisStore(redisClient, cfg.SessionTTL), conversation.NewRedisLog(redisClient, cfg.SessionTTL)
	}
	if cfg.SessionBackend == "redis" {
		logger.Warn("redis session backend requested but redis is unavailable; falling back to memory")
	}
	return session.NewMemoryStore(cfg.SessionTTL, sessionSweepInterval), conversation.NewMemoryLog()
}

// Repositories groups the persistence the chat surface depends on.
type Repositories struct {
	Catalog  catalog.Repository
	Leads    leads.Repository
	Payments payments.Repository
}

// BuildRepositories returns Postgres-backed repositories when a pool is
// available and seeded in-memory ones otherwise.
func BuildRepositories(pool *pgxpool.Pool, now time.Time) Repositories {
	if pool == nil {
		return Repositories{
			Catalog:  catalog.NewMemoryRepository(catalog.DefaultSeed(now)),
			Leads:    leads.NewInMemoryRepository(),
			Payments: payments.NewMemoryRepository(),
		}
	}
	return Repositories{
		Catalog:  catalog.NewPostgresRepository(pool),
		Leads:    leads.NewPostgresRepository(pool),
		Payments: payments.NewPostgresRepository(pool),
	}
}
