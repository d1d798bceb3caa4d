package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/aiclient"
	"github.com/umlstudio/engine/internal/api"
	"github.com/umlstudio/engine/internal/api/handlers"
	mw "github.com/umlstudio/engine/internal/api/middleware"
	"github.com/umlstudio/engine/internal/hub"
	"github.com/umlstudio/engine/internal/queue/tasks"
	"github.com/umlstudio/engine/internal/repository"
	"github.com/umlstudio/engine/internal/services"
	"github.com/umlstudio/engine/pkg/config"
	"github.com/umlstudio/engine/pkg/database"
	"github.com/umlstudio/engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Initialize logger
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("Starting UML Studio engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.Bool("persistence", cfg.PersistenceEnabled()),
		zap.Bool("queue", cfg.QueueEnabled()),
	)

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, every request is anonymous")
	}

	ai := aiclient.New(cfg.AIBaseURL, aiclient.WithTimeout(cfg.AITimeout))
	origins := cfg.AllowedOrigins()
	hubOpts := []hub.Option{
		hub.WithIdentify(api.Identify),
		hub.WithCheckOrigin(func(r *http.Request) bool { return mw.AllowOrigin(origins, r.Header.Get("Origin")) }),
	}
	dep := api.Dependencies{
		HMACSecret:  jwtSecret,
		CORSOrigins: origins,
		RateLimit: mw.RateLimitOptions{
			RPS:        cfg.RateLimitRPS,
			Burst:      cfg.RateLimitBurst,
			TrustProxy: cfg.TrustProxy,
		},
	}

	// Rooms persist only when a database is configured
	ctx := context.Background()
	var asynqClient *asynq.Client
	if cfg.PersistenceEnabled() {
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.Options{Verbose: cfg.AppEnv == "development"})
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		log.Info("Database connected successfully")

		roomSvc := services.NewRoomService(db, repository.NewRoomRepository(db), repository.NewDiagramRepository(db))
		hubOpts = append(hubOpts, hub.WithStore(roomSvc))

		if cfg.QueueEnabled() {
			redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
			asynqClient = asynq.NewClient(redisOpt)
			hubOpts = append(hubOpts, hub.WithPersister(tasks.NewEnqueuer(asynqClient)))
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			defer rdb.Close()
			dep.HealthChecks = append(dep.HealthChecks, handlers.Check{Name: "redis", Fn: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}})
		} else {
			hubOpts = append(hubOpts, hub.WithPersister(roomSvc))
		}

		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal("Failed to access database pool", zap.Error(err))
		}
		dep.HealthChecks = append(dep.HealthChecks, handlers.Check{Name: "database", Fn: sqlDB.PingContext})

		h := hub.New(hubOpts...)
		dep.Hub = h
		dep.RoomsHandler = handlers.NewRoomsHandler(roomSvc, h, ai)
	} else {
		log.Warn("DATABASE_URL not set, rooms live in memory only")
		dep.Hub = hub.New(hubOpts...)
	}

	// Create router with dependencies
	router := api.NewRouter(dep)

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
	// Hijacked websocket connections are not tracked by the server
	if err := dep.Hub.Close(shutdownCtx); err != nil {
		log.Error("hub shutdown error", zap.Error(err))
	}
	if asynqClient != nil {
		_ = asynqClient.Close()
	}
	log.Info("server exited gracefully")
}
