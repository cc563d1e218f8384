package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/babble-live/internal/cache"
	"github.com/weiawesome/babble-live/internal/config"
	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/handler"
	"github.com/weiawesome/babble-live/internal/hub"
	"github.com/weiawesome/babble-live/internal/relay"
	"github.com/weiawesome/babble-live/internal/repository"
	"github.com/weiawesome/babble-live/internal/service"
	"github.com/weiawesome/babble-live/internal/store"
	"github.com/weiawesome/babble-live/pkg/database"
	"github.com/weiawesome/babble-live/pkg/jwt"
	pkglog "github.com/weiawesome/babble-live/pkg/log"
	"github.com/weiawesome/babble-live/pkg/middleware"
	"github.com/weiawesome/babble-live/pkg/pubsub"
	"github.com/weiawesome/babble-live/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Relay.InstanceID == "" {
		cfg.Relay.InstanceID = uuid.NewString()
		cfg.Log.InstanceID = cfg.Relay.InstanceID
	}

	// Initialize structured logger
	cfg.Log.Pretty = cfg.Log.Pretty || cfg.Log.Level == "debug"
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	categoryRepo := repository.NewGormCategoryRepository(db)
	if err := categoryRepo.EnsureSeeded(ctx, cfg.Categories); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed categories")
	}

	// Redis backs the presence store, the room cache and the title lock.
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")

	// Object storage for thumbnails
	objects, err := storage.New(ctx, cfg.Storage.Config)
	if err != nil {
		if !errors.Is(err, storage.ErrDisabled) {
			logger.Fatal().Err(err).Msg("failed to initialize storage")
		}
		objects = nil
		logger.Info().Msg("object storage disabled, thumbnails are passed through")
	}

	// Core components
	userRepo := repository.NewGormUserRepository(db)
	visitRepo := repository.NewGormVisitRepository(db)
	thumbs := service.NewThumbnailResolver(objects, cfg.Storage.URLTTL)
	tags := service.NewTagIndex(repository.NewGormTagRepository(db))

	registry := service.NewRoomRegistry(service.RegistryDeps{
		Rooms:      repository.NewGormRoomRepository(db),
		Categories: categoryRepo,
		Users:      userRepo,
		Tags:       tags,
		Cache:      cache.NewRedisRoomCache(redisClient, cfg.Cache.Prefix, cfg.Cache.TTL),
		Locker:     cache.NewRedisLocker(redisClient, cfg.Cache.Prefix, cfg.Cache.LockLease, cfg.Cache.LockWait),
		Thumbnails: thumbs,
	}, service.RegistryConfig{
		MaxTitleLength: cfg.Room.MaxTitleLength,
		MaxHashtags:    cfg.Room.MaxHashtags,
		CreateAttempts: cfg.Room.CreateAttempts,
	})
	members := service.NewMembershipTracker(store.NewRedisStore(redisClient), registry, visitRepo)
	listing := service.NewListingAggregator(registry, categoryRepo, members, tags, thumbs, cfg.Listing.MaxConcurrency)
	liveHub := hub.New(members)

	// Cross-instance relay
	var rly *relay.Relay
	bus, err := newBus(cfg.Relay, redisClient)
	switch {
	case errors.Is(err, pubsub.ErrDisabled):
		logger.Info().Msg("relay disabled, running as a single instance")
	case err != nil:
		logger.Fatal().Err(err).Str("driver", cfg.Relay.Driver).Msg("failed to initialize relay bus")
	default:
		defer bus.Close()
		rly = relay.New(bus, cfg.Relay.InstanceID)
		liveHub.SetForwarder(rly)
		go rly.Run(ctx, liveHub)
		logger.Info().Str("driver", cfg.Relay.Driver).Msg("relay started")
	}

	svc := service.NewLiveRoomService(service.Deps{
		Registry:     registry,
		Members:      members,
		Listing:      listing,
		Tags:         tags,
		Hub:          liveHub,
		Users:        userRepo,
		UserHashtags: repository.NewGormUserHashtagRepository(db),
		Visits:       visitRepo,
	}, cfg.Presence.GracePeriod)

	// Auth
	tokens, err := jwt.NewManager(cfg.Auth)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize token manager")
	}
	if cfg.Auth.PrivateKeyPath == "" && cfg.Auth.PublicKeyPath == "" {
		logger.Warn().Msg("no signing keys configured, using an ephemeral key pair")
	}

	// REST API
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	if cfg.Storage.Driver == "local" {
		r.Static(cfg.Storage.Local.PublicURL, cfg.Storage.Local.BasePath)
	}
	handler.NewHandler(svc, middleware.NewAuthMiddleware(tokens)).RegisterRoutes(r)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Live gateway
	router := mux.NewRouter()
	router.Use(pkglog.HTTPMiddleware(logger))
	handler.NewWSHandler(svc, tokens, hub.ClientConfig{
		PingInterval:   cfg.Gateway.PingInterval,
		PongWait:       cfg.Gateway.PongWait,
		WriteWait:      cfg.Gateway.WriteWait,
		MaxMessageSize: cfg.Gateway.MaxMessageSize,
		SendBuffer:     cfg.Gateway.SendBuffer,
	}).RegisterRoutes(router)

	gatewayServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: router,
	}

	for name, srv := range map[string]*http.Server{"api": apiServer, "gateway": gatewayServer} {
		go func(name string, srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Str("server", name).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Str("server", name).Msg("server error")
			}
		}(name, srv)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api server forced to shutdown")
	}
	// Hijacked websocket connections are not tracked by http.Server; the
	// hub drains them.
	if err := gatewayServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("gateway server forced to shutdown")
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to drain live channels")
	}

	cancel()
	if rly != nil {
		select {
		case <-rly.Done():
		case <-shutdownCtx.Done():
		}
	}

	logger.Info().Msg("babble-live stopped")
}

// newBus shares the main Redis client for the redis driver and builds a
// dedicated client otherwise.
func newBus(cfg config.RelayConfig, client *redis.Client) (pubsub.PubSub, error) {
	if cfg.Driver == pubsub.DriverRedis {
		return pubsub.NewRedisPubSubFromClient(client), nil
	}
	cfg.Kafka.InstanceID = cfg.InstanceID
	return pubsub.NewPubSub(cfg.Config)
}
