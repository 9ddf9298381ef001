package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/device-license-api/internal/completion"
	"github.com/makkenzo/device-license-api/internal/config"
	"github.com/makkenzo/device-license-api/internal/domain/activation"
	"github.com/makkenzo/device-license-api/internal/domain/license"
	"github.com/makkenzo/device-license-api/internal/handler"
	"github.com/makkenzo/device-license-api/internal/handler/middleware"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"github.com/makkenzo/device-license-api/internal/lock"
	"github.com/makkenzo/device-license-api/internal/metrics"
	"github.com/makkenzo/device-license-api/internal/service"
	"github.com/makkenzo/device-license-api/internal/storage/filestore"
	"github.com/makkenzo/device-license-api/internal/storage/memstorage"
	"github.com/makkenzo/device-license-api/internal/storage/postgres"
	"github.com/makkenzo/device-license-api/internal/storage/redis"
	"github.com/makkenzo/device-license-api/internal/tasks"
	"github.com/makkenzo/device-license-api/internal/worker"
	"github.com/makkenzo/device-license-api/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type storage struct {
	licenses    license.Repository
	activations activation.Repository
	health      handler.HealthCheck
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverFile:
		dir := cfg.Storage.Dir
		if err := filestore.Ping(dir); err != nil {
			return nil, err
		}
		appLogger.Info("Using flat-file license storage", zap.String("dir", dir))
		return &storage{
			licenses:    filestore.NewLicenseRepository(dir, appLogger),
			activations: filestore.NewActivationRepository(dir, appLogger),
			health:      func(context.Context) error { return filestore.Ping(dir) },
			close:       func() {},
		}, nil

	case config.StorageDriverPostgres:
		dbPool, err := postgres.NewPgxPool(ctx, &cfg.Database, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, dbPool, appLogger); err != nil {
			dbPool.Close()
			return nil, err
		}
		return &storage{
			licenses:    postgres.NewLicenseRepository(dbPool, appLogger),
			activations: postgres.NewActivationRepository(dbPool, appLogger),
			health:      dbPool.Ping,
			close:       dbPool.Close,
		}, nil

	case config.StorageDriverMemory:
		appLogger.Warn("Using in-memory license storage, data is lost on restart")
		return &storage{
			licenses:    memstorage.NewLicenseRepository(),
			activations: memstorage.NewActivationRepository(),
			health:      func(context.Context) error { return nil },
			close:       func() {},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown storage driver %q", ierr.ErrValidation, cfg.Storage.Driver)
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(appCtx, cfg, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to open storage: %v", err)
	}
	defer store.close()

	healthChecks := map[string]handler.HealthCheck{"storage": store.health}

	var locker lock.Locker = lock.NewKeyedMutex()
	redisEnabled := redis.Enabled(&cfg.Redis)
	if redisEnabled {
		redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		if cfg.Lock.Driver == config.LockDriverRedis {
			locker = redis.NewLocker(redisClient, cfg.Lock.TTL, cfg.Lock.Wait, appLogger)
			sugarLogger.Info("Using Redis for per-license locking")
		}
	} else if cfg.Lock.Driver == config.LockDriverRedis {
		sugarLogger.Fatal("lock.driver is redis but redis.addr is empty")
	}

	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	licenseService := service.NewLicenseService(store.licenses, store.activations, locker, appLogger,
		service.WithMetrics(appMetrics),
		service.WithDurationLimits(cfg.License.DefaultDurationDays, cfg.License.MaxDurationDays),
	)
	completionClient := completion.NewClient(&cfg.Completion, nil, appLogger)
	completionService := service.NewCompletionService(licenseService, completionClient, cfg.Completion.MaxInputChars, appMetrics, appLogger)

	routes := handler.Routes{
		License:    handler.NewLicenseHandler(licenseService, appLogger),
		Ask:        handler.NewAskHandler(completionService, appLogger),
		Health:     handler.NewHealthHandler(healthChecks, appLogger),
		AdminGuard: middleware.AdminGuard(&cfg.Admin, appLogger),
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		appLogger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			middleware.AdminKeyHeader,
			middleware.RequestIDHeader,
		},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORS.AllowOrigins) == 0 || (len(cfg.CORS.AllowOrigins) == 1 && cfg.CORS.AllowOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
		corsConfig.AllowBrowserExtensions = true
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.ErrorHandlerMiddleware(appLogger))

	handler.RegisterRoutes(router, routes)

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	if cfg.Worker.Enabled {
		if !redisEnabled {
			sugarLogger.Warn("worker.enabled is set but redis.addr is empty, background tasks are disabled")
		} else {
			statsHandler := tasks.NewLicenseStatsHandler(store.licenses, appMetrics, licenseService.Now, appLogger)
			g.Go(func() error {
				if err := worker.RunWorkers(groupCtx, cfg, statsHandler, appLogger); err != nil {
					appLogger.Error("Asynq worker failed", zap.Error(err))
					return fmt.Errorf("asynq worker error: %w", err)
				}
				sugarLogger.Info("Asynq workers finished gracefully.")
				return nil
			})
		}
	}

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			sugarLogger.Info("Shutdown reason: Context canceled (likely due to OS signal).")
		} else {
			sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
		}
	} else {
		sugarLogger.Info("Application shutdown successfully (all components finished without errors).")
	}

	sugarLogger.Info("Application exiting now.")
}
