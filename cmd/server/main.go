package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/payment"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service", zap.String("env", cfg.Server.Env))

	decimal.MarshalJSONWithoutQuotes = true

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	eventPublisher := broker.NewEventPublisher(producer)
	gateway := payment.NewGateway(cfg.Payment)

	cartService := service.NewCartService(db, db)
	orderService := service.NewOrderService(
		cartService,
		service.NewCouponValidator(db),
		db,
		gateway,
		redisClient,
		eventPublisher,
		service.OrderServiceConfig{
			Currency:         cfg.Payment.Currency,
			PlacementLockTTL: cfg.Business.PlacementLockTTL(),
		},
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(consumer, db, worker.NewLogNotifier(logger))
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	sweeper := worker.NewStaleOrderSweeper(orderService, redisClient,
		cfg.Business.OrderTimeout(), cfg.Business.SweepInterval())
	go func() {
		if err := sweeper.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Stale order sweeper error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(cartService, orderService, api.HandlerConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		CookieName:     cfg.Auth.CookieName,
		Currency:       cfg.Payment.Currency,
		DefaultCountry: cfg.Business.DefaultCountry,
		Checks: map[string]api.HealthCheck{
			"postgres": db.Ping,
			"redis":    redisClient.Ping,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if port := cfg.Observ.PrometheusPort; port != "" && port != cfg.Server.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%s", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		logger.Error("Error stopping notification worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
