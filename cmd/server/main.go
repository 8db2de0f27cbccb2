package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/adapter/httpserver"
	"github.com/pscheid92/streamrelay/internal/adapter/postgres"
	"github.com/pscheid92/streamrelay/internal/adapter/redis"
	"github.com/pscheid92/streamrelay/internal/app"
	"github.com/pscheid92/streamrelay/internal/crypto"
	"github.com/pscheid92/streamrelay/internal/platform/config"
	"github.com/pscheid92/streamrelay/internal/platform/logging"
	"github.com/pscheid92/streamrelay/internal/platform/retry"
	"github.com/pscheid92/streamrelay/internal/platform/version"
	"github.com/pscheid92/streamrelay/internal/twitch"
	goredis "github.com/redis/go-redis/v9"
)

const startupTimeout = 60 * time.Second

func runGracefulShutdown(srv *httpserver.Server, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func onConnectRetry(dependency string) func(int, error, time.Duration) {
	return func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Dependency not reachable, retrying", "dependency", dependency, "attempt", attempt, "backoff", backoff, "error", err)
	}
}

func setupDB(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	policy := retry.ConnectPolicy
	policy.OnRetry = onConnectRetry("postgres")

	pool, err := retry.Do(ctx, policy, retry.Always, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupRedis returns nil when REDIS_URL is not set; the app token is then cached per process.
func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, app token is not shared between replicas")
		return nil
	}

	policy := retry.ConnectPolicy
	policy.OnRetry = onConnectRetry("redis")

	client, err := retry.Do(ctx, policy, retry.Always, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func healthChecks(pool *pgxpool.Pool, redisClient *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:     "redis",
			Optional: true,
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().Version)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	pool := setupDB(startupCtx, cfg)
	defer pool.Close()

	redisClient := setupRedis(startupCtx, cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	cancelStartup()

	cipher, err := crypto.New(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Failed to set up token encryption", "error", err)
		os.Exit(1)
	}
	credentials := postgres.NewCredentialRepo(pool, cipher)

	twitchClient := twitch.NewClient(cfg.TwitchClientID, cfg.TwitchClientSecret,
		twitch.WithAPIURL(cfg.TwitchAPIURL),
		twitch.WithOAuthURL(cfg.TwitchOAuthURL),
		twitch.WithTimeout(cfg.UpstreamTimeout),
		twitch.WithUserAgent(version.UserAgent()),
		twitch.WithClock(clock),
	)

	var appTokenSource twitch.AppTokenSource = twitchClient
	if redisClient != nil {
		appTokenSource = redis.NewSharedAppTokenSource(redisClient, twitchClient, clock)
	}
	appTokens := twitch.NewAppTokenCache(appTokenSource, clock)

	refresher := app.NewTokenRefresher(credentials, twitchClient)
	streams := app.NewStreamService(twitchClient, appTokens, credentials, refresher)

	srv, err := httpserver.NewServer(cfg, streams, healthChecks(pool, redisClient))
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, cfg.ShutdownTimeout)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Server stopped")
}
