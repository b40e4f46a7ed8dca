package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finances/accounts-service/internal/command"
	"github.com/finances/accounts-service/internal/config"
	"github.com/finances/accounts-service/internal/handler"
	"github.com/finances/accounts-service/internal/query"
	"github.com/finances/accounts-service/internal/repository"
	"github.com/finances/accounts-service/shared/events"
	"github.com/finances/accounts-service/shared/logger"
	redisClient "github.com/finances/accounts-service/shared/redis"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		// The logger is not configured yet; zerolog's default still writes JSON to stderr.
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Write store
	db, err := repository.Open(ctx, cfg.DatabaseURL(), cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		log.Fatal().Err(err).Str("host", cfg.PostgresHost).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Redis is optional: it backs the view cache and the account event stream.
	var (
		rdb       *goredis.Client
		publisher command.EventPublisher = events.Discard{}
	)
	if cfg.CacheEnabled() {
		client, err := redisClient.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		rdb = client.Client
		publisher = events.NewPublisher(rdb)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, running without view cache and account events")
	}

	// --- CQRS wiring ---
	writeRepo := repository.NewAccountWriteRepository(db, cfg.DeletePolicy)
	readRepo := repository.NewAccountReadRepository(db, rdb, cfg.CacheTTL)

	commandSvc := command.NewAccountCommandService(writeRepo, readRepo, publisher)
	querySvc := query.NewAccountQueryService(readRepo)

	router := handler.SetupRoutes(handler.RouterConfig{
		Accounts:  handler.NewAccountHandler(commandSvc, querySvc),
		Health:    handler.NewHealthHandler(readRepo),
		JWTSecret: []byte(cfg.JWTSecret),
	})

	subscriberDone := make(chan struct{})
	if rdb != nil {
		go func() {
			defer close(subscriberDone)
			subscriber := events.NewSubscriber(rdb, events.SubscriberConfig{
				// One group per replica: every replica must see every event.
				Group:    "accounts-service-" + instanceName(),
				Consumer: instanceName(),
				Stream:   events.AccountEventsStream,
				Handler:  commandSvc.HandleAccountEvent,
			})
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("subscriber stopped")
			}
		}()
	} else {
		close(subscriberDone)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("delete_policy", string(cfg.DeletePolicy)).
			Bool("auth", cfg.AuthEnabled()).
			Msg("accounts service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	<-subscriberDone
	log.Info().Msg("server stopped")
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "local"
	}
	return host
}
