package container

import (
	"context"
	"time"

	"carebridge-auth/internal/config"
	"carebridge-auth/internal/repository"
	"carebridge-auth/internal/service"
	"carebridge-auth/internal/service/auth"
	"carebridge-auth/internal/service/bootstrap"
	"carebridge-auth/internal/service/callback"
	"carebridge-auth/internal/service/rolesync"
	"carebridge-auth/pkg/database"
	"carebridge-auth/pkg/logger"
	"carebridge-auth/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	DB          *database.PostgresDB

	Backend   service.AuthBackend
	Relay     service.PayloadStore
	Guard     service.ExchangeGuard
	Recorder  service.SignInRecorder
	Auth      service.AuthService
	Callback  *callback.Router
	Bootstrap *bootstrap.Service
}

// New creates a new dependency injection container. Redis and Postgres are optional:
// without Redis the relay store and exchange guard are kept in memory, without
// Postgres the sign-in audit trail is dropped.
func New(cfg *config.Config, logger *logger.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Named("redis").Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, using in-memory relay store")
		} else {
			c.RedisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, using in-memory relay store")
	}

	if c.RedisClient != nil {
		c.Relay = repository.NewRelayStore(c.RedisClient)
		c.Guard = repository.NewExchangeGuard(c.RedisClient)
	} else {
		c.Relay = repository.NewMemoryRelayStore()
		c.Guard = repository.NewMemoryExchangeGuard()
	}

	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to database, sign-in audit trail disabled")
		} else {
			c.DB = db
			logger.Info("Database connected successfully")
		}
	}

	if c.DB != nil {
		c.Recorder = repository.NewSignInEventRepository(c.DB, logger.Logger)
	} else {
		c.Recorder = repository.NopRecorder{}
	}

	c.Backend = service.NewSupabaseClient(cfg, logger)
	roles := rolesync.NewPropagator(c.Backend, cfg.BackendTimeout, logger)

	c.Auth = auth.NewService(cfg, c.Backend, logger)
	c.Callback = callback.NewRouter(cfg, c.Backend, c.Guard, c.Recorder, roles, logger)
	c.Bootstrap = bootstrap.NewService(cfg, c.Backend, c.Relay, c.Recorder, roles, logger)

	return c, nil
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// HasDatabase returns true if the audit database is available
func (c *Container) HasDatabase() bool {
	return c.DB != nil
}

// Close releases the Redis and database connections
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.WithError(err).Error("Failed to close Redis connection")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
