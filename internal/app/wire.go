package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mwillis/notifd/internal/cache/redis"
	"github.com/mwillis/notifd/internal/channelauth"
	"github.com/mwillis/notifd/internal/config"
	"github.com/mwillis/notifd/internal/dashboardauth"
	"github.com/mwillis/notifd/internal/domain"
	"github.com/mwillis/notifd/internal/hub"
	"github.com/mwillis/notifd/internal/httpapi"
	"github.com/mwillis/notifd/internal/presence"
	"github.com/mwillis/notifd/internal/store/postgres"
)

// Dependencies bundles every concrete implementation the HTTP server needs.
type Dependencies struct {
	Users    domain.UserStore
	Domains  domain.AppDomainStore
	Channels domain.ChannelStore

	Bus         domain.Bus
	RateLimiter domain.RateLimiter
	Locker      domain.LockManager

	Hub      *hub.Hub
	Roster   *presence.Roster
	Verifier *channelauth.Verifier
	JWT      *dashboardauth.JWTIssuer
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, func() { pgClient.Close() })

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()

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

	deps := &Dependencies{
		Users:       postgres.NewUserStore(pool),
		Domains:     postgres.NewAppDomainStore(pool),
		Channels:    postgres.NewChannelStore(pool),
		Bus:         redis.NewBus(redisClient),
		RateLimiter: redis.NewRateLimiter(redisClient),
		Locker:      redis.NewLockManager(redisClient),
		JWT:         dashboardauth.NewJWTIssuer(cfg.Notif.JWTSecret),
		Verifier:    channelauth.New(cfg.Notif.AppSecret),
	}
	deps.Hub = hub.New(deps.Bus, logger)
	deps.Roster = presence.New(deps.Bus, logger)

	return deps, cleanup, nil
}

// NewHTTPServer builds the httpapi.Server from configuration and wired
// dependencies.
func NewHTTPServer(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *httpapi.Server {
	return httpapi.NewServer(httpapi.Config{
		Addr:             cfg.Server.Addr,
		CORSOrigins:      cfg.Server.CORSOrigins,
		AppKey:           cfg.Notif.AppKey,
		BroadcastRateMax: 100,
		BroadcastRateWin: 0,
	}, httpapi.Deps{
		Hub:         deps.Hub,
		Roster:      deps.Roster,
		Verifier:    deps.Verifier,
		Users:       deps.Users,
		Domains:     deps.Domains,
		Channels:    deps.Channels,
		JWTIssuer:   deps.JWT,
		RateLimiter: deps.RateLimiter,
		Locker:      deps.Locker,
	}, logger)
}
