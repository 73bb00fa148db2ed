package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/pontoweb/auth-service/config"
	database "github.com/pontoweb/auth-service/internal/core"
	"github.com/pontoweb/auth-service/internal/core/domain"
	"github.com/pontoweb/auth-service/internal/core/repository"
	"github.com/pontoweb/auth-service/internal/localsession"
	logicv1 "github.com/pontoweb/auth-service/internal/logic/v1"
	"github.com/pontoweb/auth-service/internal/password"
	"github.com/pontoweb/auth-service/internal/token"
	v1 "github.com/pontoweb/auth-service/internal/web/v1"
	"github.com/pontoweb/auth-service/middleware"
	pkgzerolog "github.com/pontoweb/auth-service/pkg/logger/zerolog"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	// Initialize Zerolog with LOG_LEVEL and environment from config
	pkgzerolog.Setup(cfg.Logging.Level, cfg.Service.Env)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("port", cfg.Service.Port).
		Msg("Service starting")

	// Initialize OpenTelemetry tracing
	var tp interface{ Shutdown(context.Context) error }
	var err error
	if cfg.Tracing.Enabled {
		tp, err = middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			log.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	} else {
		log.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	// Initialize Pyroscope profiling
	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize profiling")
		} else {
			log.Info().
				Str("endpoint", cfg.Profiling.Endpoint).
				Msg("Profiling initialized")
			defer middleware.StopProfiling()
		}
	} else {
		log.Info().Msg("Profiling disabled (PROFILING_ENABLED=false)")
	}

	// Apply schema migrations, then open the connection pool (pgx)
	if err := database.RunMigrations(context.Background(), cfg.Database.URL); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}
	pool, err := database.Connect(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("Database connection pool established")

	// Open the client-local session cache
	kv, err := localsession.OpenSQLite(cfg.Local.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local session store")
	}
	defer kv.Close()

	// Wire the auth service
	localStore := localsession.NewStore(kv, cfg.Auth.SessionTTL)
	authService := logicv1.NewAuthService(
		repository.NewUserRepository(pool),
		repository.NewSessionRepository(pool),
		password.NewHasher(0),
		token.NewManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionTTL),
		localStore,
	)

	// Auth state channel: handlers announce transitions, the broadcaster
	// re-resolves the session and republishes to subscribers.
	events := make(chan logicv1.Event, 16)
	broadcaster := logicv1.NewBroadcaster(authService.CurrentSession)
	subID := broadcaster.Subscribe(func(u *domain.User) {
		if u == nil {
			log.Info().Msg("Session state: unauthenticated")
			return
		}
		log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("Session state: authenticated")
	})

	runCtx, stopBroadcaster := context.WithCancel(context.Background())
	go broadcaster.Run(runCtx, events)

	handler := v1.NewHandler(authService, events)

	r := gin.Default()

	var isShuttingDown atomic.Bool

	// Tracing middleware
	r.Use(middleware.TracingMiddleware(cfg.Service.Name))

	// Logging middleware
	r.Use(middleware.LoggingMiddleware())

	// Prometheus middleware
	r.Use(middleware.PrometheusMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Readiness check
	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (canonical API - frontend-aligned)
	apiV1 := r.Group("/api/v1")
	handler.RegisterRoutes(apiV1)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Service.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Service.Port).Msg("Starting auth service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	// Fail readiness first and wait for propagation (drains K8s traffic).
	isShuttingDown.Store(true)
	drainDelay := cfg.GetReadinessDrainDelayDuration()
	if drainDelay > 0 {
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay started")
		time.Sleep(drainDelay)
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay completed")
	}

	// Shutdown context with configurable timeout
	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server...")

	// 1. Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		log.Info().Msg("HTTP server shutdown complete")
	}

	// 2. Tear down the auth state consumer; unsubscribe is idempotent so a
	// late notification never reaches a destroyed consumer. The events
	// channel is left open: Shutdown can return on timeout with requests
	// still in flight, and a handler emitting into a closed channel would
	// panic. Cancelling the run context is what stops the broadcaster.
	broadcaster.Unsubscribe(subID)
	stopBroadcaster()

	// 3. Close database connections
	pool.Close()
	log.Info().Msg("Database pool closed")

	// 4. Shutdown tracer
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown error")
		} else {
			log.Info().Msg("Tracer shutdown complete")
		}
	}

	log.Info().Msg("Graceful shutdown complete")
}
