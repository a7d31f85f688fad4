package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventhub/api/routes"
	"eventhub/docs"
	"eventhub/internal/gateway"
	"eventhub/internal/journal"
	"eventhub/internal/notifications"
	"eventhub/internal/session"
	"eventhub/internal/shared/config"
	"eventhub/internal/shared/database"
	"eventhub/internal/shared/middleware"
	"eventhub/pkg/cache"
	"eventhub/pkg/logger"
	"eventhub/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// The logger picks its handler from the gin mode, so rebuild it now
	appLogger = logger.New()
	logger.SetDefault(appLogger)

	docs.SwaggerInfo.Version = Version
	docs.SwaggerInfo.BasePath = cfg.GetAPIBasePath()

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	shared, registryOpts, err := buildShared(cfg, db, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize gateway", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := shared.Publisher.Close(); err != nil {
			appLogger.Error("Error closing transition publisher", slog.Any("error", err))
		}
	}()

	registry := gateway.NewRegistry(gateway.NewWorkflowFactory(shared), registryOpts...)

	// Drop idle session clients; their session data stays in the store
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepSessions(sweepCtx, registry, cfg.Session.TTL, appLogger)

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled && db.Redis != nil {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), &ratelimit.Config{
			Enabled:         cfg.RateLimit.Enabled,
			WindowDuration:  cfg.RateLimit.WindowDuration,
			DefaultRequests: cfg.RateLimit.DefaultRequests,
			PublicRequests:  cfg.RateLimit.PublicRequests,
			AuthRequests:    cfg.RateLimit.AuthRequests,
			BookingRequests: cfg.RateLimit.BookingRequests,
			PaymentRequests: cfg.RateLimit.PaymentRequests,
			HealthRequests:  cfg.RateLimit.HealthRequests,
			WhitelistedIPs:  cfg.RateLimit.WhitelistedIPs,
		})
		scriptCtx, cancelScripts := context.WithTimeout(context.Background(), 10*time.Second)
		if err := rateLimiter.PreloadScripts(scriptCtx); err != nil {
			// Run loads the script on first use
			appLogger.Error("Failed to preload rate limit script", slog.Any("error", err))
		}
		cancelScripts()
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	router := setupRouter(cfg, db, registry, rateLimiter)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Gateway running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("swagger", fmt.Sprintf("http://localhost:%s/swagger/index.html", cfg.Port)),
			slog.String("backend", cfg.BackendURL()),
			slog.String("version", Version),
			slog.String("session_store", cfg.Session.Store),
			slog.String("notify_backend", cfg.Notify.Backend),
			slog.Bool("journal", db.PostgreSQL != nil),
			slog.Bool("rate_limiting", rateLimiter != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

// buildShared picks the session store, events cache, journal and transition
// publisher from configuration. Redis and Postgres backed variants need the
// matching connection to be enabled.
func buildShared(cfg *config.Config, db *database.DB, appLogger *logger.Logger) (gateway.Shared, []gateway.RegistryOption, error) {
	shared := gateway.Shared{Config: cfg, Logger: appLogger}
	var opts []gateway.RegistryOption

	switch cfg.Session.Store {
	case "redis":
		if db.Redis == nil {
			return shared, nil, fmt.Errorf("SESSION_STORE=redis requires REDIS_ENABLED=true")
		}
		sessions := session.RedisFactory(db.GetRedisClient(), cfg.Session.TTL, session.NewSealer(cfg.Session.Secret))
		shared.Sessions = sessions
		// Logged in sessions outlive a restart
		opts = append(opts, gateway.WithResume(func(sessionID string) bool {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := sessions(sessionID).Load(ctx)
			return err == nil
		}))
	default:
		stores := session.NewMemoryStores()
		shared.Sessions = stores.Store
		opts = append(opts, gateway.WithEvict(stores.Drop))
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Store == "redis" && db.Redis != nil {
			shared.Cache = cache.NewService(db.GetRedisClient())
		} else {
			shared.Cache = cache.NewMemoryService()
		}
	}

	if db.PostgreSQL != nil {
		shared.Journal = journal.NewRepository(db.GetPostgreSQL())
	} else {
		shared.Journal = journal.NewMemoryRepository()
	}

	publisher, err := notifications.NewPublisher(cfg.Notify)
	if err != nil {
		return shared, nil, fmt.Errorf("transition publisher: %w", err)
	}
	shared.Publisher = publisher

	return shared, opts, nil
}

func sweepSessions(ctx context.Context, registry *gateway.Registry, maxIdle time.Duration, appLogger *logger.Logger) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(maxIdle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := registry.Sweep(maxIdle); n > 0 {
				appLogger.Debug("Swept idle sessions", slog.Int("count", n))
			}
		}
	}
}

func setupRouter(cfg *config.Config, db *database.DB, registry *gateway.Registry, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	engine.Use(middleware.CorrelationID(), middleware.RequestLogger(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Length", "Content-Type",
			middleware.SessionIDHeader, middleware.CorrelationIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.SessionIDHeader, middleware.CorrelationIDHeader,
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	routes.NewRouter(cfg, db, registry).SetupRoutes(engine)

	return engine
}
