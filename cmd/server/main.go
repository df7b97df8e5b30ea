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

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/catalog"
	"storefront/internal/identity"
	"storefront/internal/promo"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.ServiceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer(cfg.Server.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	if cfg.Database.SeedCatalog {
		if err := db.UpsertProducts(ctx, catalog.SeedProducts()); err != nil {
			logger.Fatal("Failed to seed catalog", zap.Error(err))
		}
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SessionTTL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	gotrue, err := identity.NewGoTrueClient(cfg.Identity.URL, cfg.Identity.AnonKey)
	if err != nil {
		logger.Fatal("Failed to configure identity backend", zap.Error(err))
	}
	accounts := identity.NewService(gotrue, redisClient, identity.ServiceConfig{
		SiteURL:     cfg.Identity.RedirectURL,
		CallTimeout: cfg.Identity.CallTimeout,
	})

	promos, err := promo.NewValidator(promo.DefaultTable())
	if err != nil {
		logger.Fatal("Failed to load promo table", zap.Error(err))
	}

	cartService := service.NewCartService(cfg.Business.PricingRules(), db, promos, redisClient, eventPublisher)
	orderService := service.NewOrderService(db, redisClient, eventPublisher, service.OrderServiceConfig{
		SubmitDelay:      cfg.Business.OrderSubmitDelay,
		DeliveryEstimate: cfg.Business.DeliveryEstimate,
	})
	checkoutService := service.NewCheckoutService(cartService, accounts, orderService, redisClient, cfg.Business.CheckoutLockTTL)
	fulfillment := service.NewFulfillmentService(db, redisClient, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup)
	orderWorker := worker.NewOrderWorker(orderConsumer, fulfillment)
	go func() {
		if err := orderWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Order worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Catalog:  db,
		Carts:    cartService,
		Checkout: checkoutService,
		Orders:   orderService,
		Accounts: accounts,
		Sessions: redisClient,
		Ready: map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := orderWorker.Stop(); err != nil {
		logger.Warn("Failed to stop order worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
