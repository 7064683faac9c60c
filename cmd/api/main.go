package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"marketplace/internal/config"
	"marketplace/internal/consumer"
	"marketplace/internal/database"
	"marketplace/internal/handler"
	"marketplace/internal/middleware"
	"marketplace/internal/monitor"
	"marketplace/internal/payment"
	"marketplace/internal/redis"
	"marketplace/internal/repository"
	"marketplace/internal/service/auth"
	"marketplace/internal/service/cart"
	"marketplace/internal/service/catalog"
	"marketplace/internal/service/moderation"
	"marketplace/internal/service/order"
	"marketplace/internal/service/promo"
	"marketplace/internal/service/report"
	"marketplace/internal/session"
	"marketplace/internal/utils"
	"marketplace/pkg/breaker"
	"marketplace/pkg/limiter"
	"marketplace/pkg/log"
	"marketplace/pkg/queue"
	"marketplace/pkg/snowflake"
	apperr "marketplace/pkg/utils"
)

var defaultCategories = []string{"Electronics", "Books", "Home", "Fashion", "Toys"}

func main() {
	cfg, err := config.LoadConfig(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to load config")
	}

	if err := log.Init(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize logger")
	}
	config.WatchConfig(func(c *config.Config) {
		if err := log.SetLevel(c.Log.Level); err != nil {
			log.WithError(err).Warn("Ignoring invalid log level")
		}
	})

	// database
	if err := database.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()
	db := database.DB

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			log.WithError(err).Fatal("Failed to migrate database")
		}
		if err := database.SeedCategories(db, defaultCategories); err != nil {
			log.WithError(err).Warn("Failed to seed categories")
		}
	}

	// redis
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redis.Init(ctx, cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize redis")
	}
	defer redis.Close()

	// observability
	metrics := monitor.NewMetricsCollector(cfg.Metrics.Namespace)
	tracer, err := monitor.NewTracer(cfg.Tracing, os.Getenv(config.EnvPrefix+"_ENV"))
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize tracer")
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to flush traces")
		}
	}()
	if sqlDB, err := db.DB(); err == nil {
		metrics.StartSystemMetricsCollection(ctx, sqlDB, 15*time.Second)
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	apperr.RegisterCustomValidators()

	messageQueue := queue.NewMemoryQueue(queue.MemoryQueueConfig{
		BufferSize:     cfg.Queue.BufferSize,
		PublishTimeout: cfg.Queue.PublishTimeout,
	})
	defer messageQueue.Close()

	app, err := buildApp(cfg, db, redis.Client, messageQueue, metrics)
	if err != nil {
		log.WithError(err).Fatal("Failed to build services")
	}
	defer app.reports.Close()

	// background workers
	paymentConsumer := consumer.NewPaymentConsumer(app.orders, messageQueue, metrics)
	if err := paymentConsumer.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start payment consumer")
	}
	sweeper := consumer.NewExpiredOrderSweeper(app.orders, redis.Client, cfg.Marketplace.SweepInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        app.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
	defer done()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Server forced to shutdown")
	}
	cancel()

	log.Info("Server exited")
}

type app struct {
	router  *gin.Engine
	orders  order.OrderService
	reports report.ReportService
}

func buildApp(cfg *config.Config, db *gorm.DB, rdb *redisv9.Client, mq queue.Queue, metrics *monitor.MetricsCollector) (*app, error) {
	repos := repository.NewRepositories(db)

	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		cfg.Security.JWT.Expire,
		cfg.Security.JWT.RefreshTTL,
	)

	idGen, err := snowflake.New(cfg.Server.NodeID)
	if err != nil {
		return nil, err
	}

	gateway := payment.NewBreakerGateway(payment.NewLoggingGateway(), breaker.Config{
		MaxRequests:         cfg.CircuitBreak.MaxRequests,
		Interval:            cfg.CircuitBreak.Interval,
		Timeout:             cfg.CircuitBreak.Timeout,
		ConsecutiveFailures: cfg.CircuitBreak.ConsecutiveFailures,
	})

	var promoAttempts limiter.RateLimiter
	if cfg.RateLimit.Enabled {
		promoAttempts = limiter.NewSlidingWindowLimiter(rdb, "promo_attempts",
			cfg.RateLimit.PromoAttempts.Limit, cfg.RateLimit.PromoAttempts.Window)
	}

	flash := session.NewRedisFlashStore(rdb, 24*time.Hour)

	authService := auth.NewAuthService(repos, jwtManager, rdb, flash, metrics)
	orderService := order.NewOrderService(repos, gateway, idGen, metrics, order.OptionsFromConfig(cfg.Marketplace))
	reportService, err := report.NewReportService(repos, cfg.Marketplace.ReportCacheTTL)
	if err != nil {
		return nil, err
	}

	rt := &handler.Router{
		Auth:       handler.NewAuthHandler(authService),
		Catalog:    handler.NewCatalogHandler(catalog.NewCatalogService(repos)),
		Cart:       handler.NewCartHandler(cart.NewCartService(repos)),
		Promo:      handler.NewPromoHandler(promo.NewPromoService(repos, promoAttempts)),
		Order:      handler.NewOrderHandler(orderService),
		Payment:    handler.NewPaymentHandler(mq, cfg.Security.PaymentCallbackToken),
		Moderation: handler.NewModerationHandler(moderation.NewModerationService(repos, flash, metrics, cfg.Marketplace.ViolationThreshold)),
		Report:     handler.NewReportHandler(reportService),
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Tracing())
	router.Use(middleware.CORS(cfg.Security))
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics(metrics))
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	router.GET("/health", healthCheck)
	router.GET("/ping", ping)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(authService, flash))
	v1.Use(middleware.Logger())
	if cfg.RateLimit.Enabled {
		v1.Use(middleware.RateLimit(limiter.NewKeyedTokenBucket(
			rate.Limit(cfg.RateLimit.PerIP.RPS), cfg.RateLimit.PerIP.Burst, cfg.RateLimit.PerIP.TTL)))
	}
	rt.Register(v1)

	return &app{router: router, orders: orderService, reports: reportService}, nil
}

func healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth := checkHealth(database.Health(ctx))
	redisHealth := checkHealth(redis.Health(ctx))

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"services": map[string]interface{}{
			"database": dbHealth,
			"redis":    redisHealth,
		},
	}

	if !dbHealth["healthy"].(bool) || !redisHealth["healthy"].(bool) {
		health["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}

func checkHealth(err error) map[string]interface{} {
	if err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}
	return map[string]interface{}{
		"healthy": true,
		"status":  "connected",
	}
}
