// @title                       Fiches API
// @version                     1.0
// @description                 Cards with visibility and download flags, kept live across clients over WebSocket and SSE.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gomongo "go.mongodb.org/mongo-driver/mongo"

	"github.com/metacode/fiches-api/internal/api"
	"github.com/metacode/fiches-api/internal/core/auth"
	"github.com/metacode/fiches-api/internal/core/ports"
	"github.com/metacode/fiches-api/internal/core/service"
	"github.com/metacode/fiches-api/internal/infrastructure/db/memory"
	"github.com/metacode/fiches-api/internal/infrastructure/db/mongo"
	"github.com/metacode/fiches-api/internal/infrastructure/db/redis"
	"github.com/metacode/fiches-api/internal/infrastructure/realtime"
	"github.com/metacode/fiches-api/internal/pkg/config"
	"github.com/metacode/fiches-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.MustLoad()

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "fiches-api",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped gracefully")
}

// stores groups the repositories selected by STORE_DRIVER with the clients
// that back them, so shutdown can release them.
type stores struct {
	users   ports.UserRepository
	records ports.RecordRepository
	mongo   *gomongo.Database
	close   func(context.Context)
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	if cfg.Store.Driver == config.StoreMemory {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return &stores{
			users:   memory.NewUserRepository(),
			records: memory.NewRecordRepository(),
			close:   func(context.Context) {},
		}, nil
	}

	client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return nil, err
	}
	users := mongo.NewUserRepository(db)
	records := mongo.NewRecordRepository(db)
	if err := mongo.EnsureIndexes(ctx, users, records); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")

	return &stores{
		users:   users,
		records: records,
		mongo:   db,
		close: func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				log.Warn().Err(err).Msg("mongodb disconnect failed")
			}
		},
	}, nil
}

// openCache connects the statistics cache. Redis is optional: without it,
// or when it cannot be reached, statistics are always computed.
func openCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*goredis.Client, ports.StatsCache) {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("redis not configured; stats cache disabled")
		return nil, nil
	}
	client, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable; stats cache disabled")
		return nil, nil
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	return client, redis.NewStatsCache(client, cfg.Store.StatsCacheTTL)
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	st, err := openStores(ctx, cfg, logger.For("store"))
	if err != nil {
		return err
	}
	rdb, cache := openCache(ctx, cfg, logger.For("cache"))

	registry := realtime.NewRegistry(logger.For("realtime"))
	broadcaster := realtime.NewBroadcaster(registry, logger.For("realtime"))

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, st.users)
	authService := service.NewAuthService(st.users, issuer, logger.For("auth"))
	recordService := service.NewRecordService(st.records, broadcaster, cache, logger.For("records"))

	if cfg.Seed.AdminUsername != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Seed.AdminUsername, cfg.Seed.AdminPassword); err != nil {
			return err
		}
	}

	e := api.NewRouter(api.Dependencies{
		Logger:          logger.For("http"),
		AuthService:     authService,
		RecordService:   recordService,
		Verifier:        verifier,
		Registry:        registry,
		Mongo:           st.mongo,
		Redis:           rdb,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		BodyLimit:       cfg.HTTP.BodyLimit,
		LoginRatePerMin: cfg.Auth.LoginRatePerMin,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Str("store", cfg.Store.Driver).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Closing the registry ends every push stream so Shutdown does not wait
	// on long-lived connections.
	registry.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}
	st.close(shutdownCtx)
	return nil
}
