package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quiz-proctor/internal/app"
	"quiz-proctor/internal/config"
	"quiz-proctor/internal/infra/kvstore"
	"quiz-proctor/internal/infra/memory"
	pgstore "quiz-proctor/internal/infra/postgres"
	redisstore "quiz-proctor/internal/infra/redis"
	"quiz-proctor/internal/logger"
	"quiz-proctor/internal/telemetry"
)

const defaultAttemptMarkerTTL = 30 * time.Second

// errEphemeralBackend refuses one-shot commands whose writes would vanish with the process.
var errEphemeralBackend = errors.New("memory storage does not outlive a single command: " +
	"set storage.backend to redis or postgres, or load quizzes with serve --seed")

// backend is everything a command needs, built from config.
type backend struct {
	cfg     config.Config
	log     zerolog.Logger
	catalog *kvstore.Catalog
	service *app.QuizService
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend wires storage, the catalog and the quiz service. reg may be nil, in which
// case no metrics are recorded.
func openBackend(ctx context.Context, configPath string, reg prometheus.Registerer) (*backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	b := &backend{
		cfg: cfg,
		log: logger.Setup(cfg.Log.Level, cfg.Log.Format),
	}

	timeout := config.Duration(cfg.Storage.Timeout, 3*time.Second)
	markerTTL := config.Duration(cfg.Redis.AttemptTTL, defaultAttemptMarkerTTL)
	var (
		adapter  kvstore.Adapter
		registry app.AttemptRegistry
		client   *redis.Client
	)
	switch cfg.Storage.Backend {
	case "", "memory":
		adapter = memory.NewStore()
	case "redis":
		if client, err = b.redisClient(ctx); err != nil {
			return nil, err
		}
		adapter = redisstore.NewStore(client, cfg.Redis.Prefix, timeout)
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg, b.log); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		adapter = pgstore.NewStore(pool, timeout)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	switch cfg.Storage.Registry {
	case "":
		if client != nil {
			registry = redisstore.NewAttemptRegistry(client, markerTTL)
		} else {
			registry = memory.NewAttemptRegistry()
		}
	case "memory":
		registry = memory.NewAttemptRegistry()
	case "redis":
		if client == nil {
			if client, err = b.redisClient(ctx); err != nil {
				return nil, err
			}
		}
		registry = redisstore.NewAttemptRegistry(client, markerTTL)
	default:
		b.Close()
		return nil, fmt.Errorf("unknown attempt registry %q", cfg.Storage.Registry)
	}
	if cfg.Storage.Backend == "postgres" && client == nil {
		b.log.Warn().Msg("attempt registry is per instance; set storage.registry to redis when running several servers")
	}

	opts := []app.Option{
		app.WithLogger(b.log),
		app.WithRegistry(registry),
		app.WithPolicy(app.Policy{
			ViolationWarning: cfg.Session.ViolationWarning,
			ViolationLimit:   cfg.Session.ViolationLimit,
		}),
	}
	if reg != nil {
		opts = append(opts, app.WithMetrics(telemetry.NewMetrics(reg)))
	}

	b.catalog = kvstore.NewCatalog(adapter)
	b.service = app.NewQuizService(b.catalog, kvstore.NewSubmissionStore(adapter), opts...)
	b.log.Debug().Str("backend", cfg.Storage.Backend).Msg("storage ready")
	return b, nil
}

func (b *backend) redisClient(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     b.cfg.Redis.Addr,
		Password: b.cfg.Redis.Password,
		DB:       b.cfg.Redis.DB,
	})
	b.closers = append(b.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		b.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// openSharedBackend is openBackend for commands that hand work to a later process.
func openSharedBackend(ctx context.Context, configPath string) (*backend, error) {
	b, err := openBackend(ctx, configPath, nil)
	if err != nil {
		return nil, err
	}
	if b.cfg.Storage.Backend == "" || b.cfg.Storage.Backend == "memory" {
		b.Close()
		return nil, errEphemeralBackend
	}
	return b, nil
}
