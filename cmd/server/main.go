// Command server runs the companion API: profiles and onboarding, the
// companion and its shop, mentor chat with its event stream, and the
// wellness lessons and check-ins.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/companion-hub/companion-hub/config"
	"github.com/companion-hub/companion-hub/internal/application/command"
	"github.com/companion-hub/companion-hub/internal/application/eventhandler"
	"github.com/companion-hub/companion-hub/internal/application/query"
	"github.com/companion-hub/companion-hub/internal/application/saga"
	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
	"github.com/companion-hub/companion-hub/internal/infrastructure/messaging"
	"github.com/companion-hub/companion-hub/internal/infrastructure/persistence/firestore"
	"github.com/companion-hub/companion-hub/internal/infrastructure/persistence/memory"
	"github.com/companion-hub/companion-hub/internal/infrastructure/persistence/postgres"
	"github.com/companion-hub/companion-hub/internal/infrastructure/persistence/redis"
	httpapi "github.com/companion-hub/companion-hub/internal/interface/http"
	"github.com/companion-hub/companion-hub/internal/interface/http/handlers"
	"github.com/companion-hub/companion-hub/pkg/logger"
	"github.com/companion-hub/companion-hub/pkg/retry"
	"github.com/companion-hub/companion-hub/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration & logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Log.Level),
		AddCaller: cfg.Log.Caller,
	}).With(
		logger.String("service", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
	ctx = logger.WithContext(ctx, log)

	log.Info("starting companion hub",
		logger.String("env", string(cfg.App.Environment)),
		logger.Backend(string(cfg.Store.Backend)),
		logger.String("timezone", cfg.App.Location.String()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Storage
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			log.Warn("store close failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	cache := openRedis(ctx, cfg)
	if cache != nil {
		defer cache.Close()
	}

	profiles := store.profiles
	var invalidator profile.Invalidator
	if cache != nil && cfg.Features.IsEnabled(config.FeatureResponseCaches, "") {
		cached := redis.NewCachedProfileRepository(store.profiles, cache, cfg.Redis.CacheTTL, log)
		profiles, invalidator = cached, cached
		log.Info("profile read cache enabled", logger.Duration("ttl", cfg.Redis.CacheTTL))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Events & chat fan-out
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
		EnableMetrics:  true,
	})
	defer bus.Close()

	if err := eventhandler.NewMilestoneHandler(log, eventhandler.DefaultLevelMilestone).Register(bus); err != nil {
		return fmt.Errorf("register event handlers: %w", err)
	}

	var broker chat.Broker
	switch {
	case cache != nil:
		broker = redis.NewMessageBroker(cache, 0)
		log.Info("chat broker: redis pub/sub")
	case store.broker != nil:
		broker = store.broker
		log.Info("chat broker: store listeners")
	default:
		local := messaging.NewLocalBroker(0, log)
		defer local.Close()
		broker = local
		log.Info("chat broker: in-process")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Application
	// ─────────────────────────────────────────────────────────────────────────
	rules := companion.Rules{Goal: cfg.Rewards.Goal, FeedProgress: cfg.Rewards.FeedProgress}
	rewards := wellness.RewardTable{
		Lesson:  wellness.Reward(cfg.Rewards.Lesson),
		Checkin: wellness.Reward(cfg.Rewards.Checkin),
	}
	features := cfg.Features

	deps := httpapi.Dependencies{
		RegisterProfile:   command.NewRegisterProfileHandler(profiles, bus),
		SaveMentorProfile: command.NewSaveMentorProfileHandler(profiles, bus),
		AssignMentor:      command.NewAssignMentorHandler(profiles, bus),
		Companion:         command.NewCompanionHandler(profiles, store.companions, bus, invalidator, rules),
		Rewards:           command.NewRewardHandler(profiles, store.wellness, bus, invalidator, rewards),
		SendMessage:       command.NewSendMessageHandler(profiles, store.messages, broker, bus),
		Onboarding:        saga.NewOnboardingSaga(profiles, store.companions, bus, invalidator),

		GetProfile: query.NewGetProfileHandler(profiles),
		GetHome: query.NewGetHomeHandler(profiles, store.companions, store.wellness, rules, query.HomeConfig{
			Zone: timeutil.NewZone(cfg.App.Location),
			StreaksEnabled: func(userID string) bool {
				return features.IsEnabled(config.FeatureStreaks, userID)
			},
		}),
		GetCompanion:       query.NewGetCompanionHandler(profiles, store.companions, rules),
		GetShop:            query.NewGetShopHandler(profiles),
		GetAssignedMentor:  query.NewGetAssignedMentorHandler(profiles),
		GetMentorDashboard: query.NewGetMentorDashboardHandler(profiles),
		GetHistory:         query.NewGetHistoryHandler(profiles, store.messages),
		WatchConversation:  query.NewWatchConversationHandler(profiles, store.messages, broker),

		Rules:    rules,
		Tokens:   handlers.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		AdminKey: handlers.NewAdminKeyAuth("", cfg.Auth.AdminKeyHash),
		Features: features,
		Logger:   log,
	}
	if cfg.Auth.AdminKeyHash == "" {
		log.Warn("AUTH_ADMIN_KEY_HASH is empty, admin endpoints reject every request")
	}
	if cache != nil {
		deps.Limiter = redis.NewRateLimiter(cache, cfg.HTTP.RateLimitPerMin, time.Minute)
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", true, store.ping)
	if cache != nil {
		health.AddCheck("redis", false, handlers.NewPingCheck(cache))
	}
	deps.HealthChecker = health

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	srv := httpapi.NewServer(httpapi.Config{
		Host:               cfg.HTTP.Host,
		Port:               cfg.HTTP.Port,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:     1 << 20,
		AllowedOrigins:     cfg.HTTP.CORSOrigins,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMin,
		StreamHeartbeat:    cfg.HTTP.StreamHeartbeat,
		Version:            cfg.App.Version,
	}, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("companion hub stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKENDS
// ══════════════════════════════════════════════════════════════════════════════

// backend is the repository set of one store implementation.
type backend struct {
	profiles   profile.Repository
	companions companion.Repository
	messages   chat.Repository
	wellness   wellness.Repository

	// Nil when the store has no change feed of its own.
	broker chat.Broker

	ping  handlers.HealthCheckFunc
	close func() error
}

func openStore(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pg := postgres.DefaultConfig(cfg.Database.URL)
		pg.MaxConns = cfg.Database.MaxConns
		pg.MinConns = cfg.Database.MinConns
		pg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		s, err := postgres.Open(ctx, pg, cfg.Database.ConnectAttempts, cfg.Database.AutoMigrate)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return &backend{
			profiles:   s.Profiles(),
			companions: s.Companions(),
			messages:   s.Messages(),
			wellness:   s.Wellness(),
			ping:       s.Ping,
			close:      s.Close,
		}, nil

	case config.BackendFirestore:
		s, err := firestore.NewStore(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to open firestore: %w", err)
		}
		return &backend{
			profiles:   s.Profiles(),
			companions: s.Companions(),
			messages:   s.Messages(),
			wellness:   s.Wellness(),
			broker:     s.Broker(),
			ping:       s.Ping,
			close:      s.Close,
		}, nil

	default:
		logger.FromContext(ctx).Warn("using the in-memory store, data is lost on restart")
		s := memory.NewStore()
		return &backend{
			profiles:   s.Profiles(),
			companions: s.Companions(),
			messages:   s.Messages(),
			wellness:   s.Wellness(),
			ping:       func(context.Context) error { return nil },
			close:      func() error { return nil },
		}, nil
	}
}

// openRedis connects with a few retries. Redis is optional: on failure the
// service runs uncached with the in-process broker and limiter.
func openRedis(ctx context.Context, cfg *config.Config) *redis.Cache {
	log := logger.FromContext(ctx).With(logger.Backend("redis"))
	if cfg.Redis.Disabled {
		log.Info("redis disabled")
		return nil
	}

	rc := redis.DefaultConfig()
	rc.URL = cfg.Redis.URL
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout

	r := retry.ConnectRetrier(3, func(attempt int, err error, delay time.Duration) {
		log.Warn("redis not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})
	cache, err := retry.DoWithData(ctx, r, func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, rc)
	})
	if err != nil {
		log.Warn("redis unavailable, continuing without it", logger.Err(err))
		return nil
	}
	log.Info("redis connected")
	return cache
}
