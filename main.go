package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/yashrajoria/inventory-reservation-service/apperrors"
	"github.com/yashrajoria/inventory-reservation-service/cache"
	"github.com/yashrajoria/inventory-reservation-service/controllers"
	"github.com/yashrajoria/inventory-reservation-service/database"
	"github.com/yashrajoria/inventory-reservation-service/events"
	"github.com/yashrajoria/inventory-reservation-service/logger"
	"github.com/yashrajoria/inventory-reservation-service/middleware"
	"github.com/yashrajoria/inventory-reservation-service/models"
	aws_pkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
	"github.com/yashrajoria/inventory-reservation-service/repository"
	"github.com/yashrajoria/inventory-reservation-service/routes"
	"github.com/yashrajoria/inventory-reservation-service/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := logger.Initialize(os.Getenv("APP_ENV"))
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	// --- AWS ---
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	awsReady := err == nil
	if !awsReady {
		log.Warn("AWS config unavailable, SNS/SQS/S3/CloudWatch disabled", zap.Error(err))
		awsCfg = sdkaws.Config{}
	}

	if awsReady && cfg.CloudWatchEnabled {
		cwLogs, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, services.ServiceName)
		if err != nil {
			log.Warn("CloudWatch logs client init failed (non-fatal)", zap.Error(err))
		} else if l, err := logger.InitializeWithWriter(cfg.AppEnv, cwLogs); err == nil {
			log = l
		}
	}
	defer func() { _ = log.Sync() }()

	metricsClient := aws_pkg.NewMetricsClient(awsCfg)

	// --- Stores ---
	var (
		repo repository.InventoryRepository
		db   *gorm.DB
	)
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("Using in-memory inventory store; state is lost on restart and not shared between instances")
		repo = repository.NewMemoryInventoryRepository()
	default:
		db, err = database.ConnectPostgres(ctx, log, cfg.Postgres,
			&models.StockRecord{}, &models.Reservation{}, &models.InventorySnapshot{})
		if err != nil {
			log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		repo = repository.NewPostgresInventoryRepository(db)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		if cfg.CacheBackend == "redis" {
			log.Fatal("Redis is required for CACHE_BACKEND=redis", zap.Error(err))
		}
		log.Warn("Redis unavailable, cross-instance events disabled", zap.Error(err))
	}

	var stockCache cache.StockCache
	if cfg.CacheBackend == "redis" {
		stockCache = cache.NewRedisStockCache(redisClient, cfg.StockCacheTTL, log)
	} else {
		stockCache = cache.NewMemoryStockCache(cache.DefaultMemoryCacheSize, cfg.StockCacheTTL)
	}

	// --- Change notification ---
	host, _ := os.Hostname()
	bus := events.NewBus(host+"-"+uuid.NewString()[:8], log)

	var broadcaster *events.RedisBroadcaster
	if redisClient != nil {
		broadcaster = events.NewRedisBroadcaster(redisClient, cfg.EventsChannel, log)
		bus.AddSink(broadcaster)
	}
	if awsReady && cfg.SNSTopicArn != "" {
		bus.AddSink(events.NewSNSSink(aws_pkg.NewSNSClient(awsCfg), cfg.SNSTopicArn))
	}
	var kafkaSink *events.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		bus.AddSink(kafkaSink)
	}
	bus.Start()

	// --- Services ---
	var catalog services.ProductCatalog
	if cfg.ProductServiceURL != "" {
		catalog = services.NewHTTPProductCatalog(cfg.ProductServiceURL)
	}
	var uploader aws_pkg.ObjectUploader
	if awsReady && cfg.SnapshotBucket != "" {
		uploader = aws_pkg.NewS3Uploader(awsCfg, cfg.SnapshotBucket)
	}

	status := services.NewStockStatusService(repo, stockCache, metricsClient, cfg.DefaultThreshold, log)
	alerts := services.NewAlertEmitter(status, bus, metricsClient, log)
	manager := services.NewReservationManager(repo, status, bus, alerts, catalog, metricsClient,
		services.HoldPolicy{Default: cfg.HoldDuration, Max: cfg.MaxHoldDuration}, log)
	sweeper := services.NewExpirySweeper(repo, status, bus, metricsClient, cfg.SweepInterval, cfg.SweepBatchSize, log)
	admin := services.NewInventoryAdmin(repo, status, bus, alerts, sweeper, uploader, metricsClient, log)

	sweeper.Start(ctx)

	if broadcaster != nil {
		relay := services.NewEventRelay(stockCache, bus, log)
		go listenForPeers(ctx, broadcaster, bus.Origin(), relay, log)
	}

	if awsReady && cfg.OrderEventsQueueURL != "" {
		consumer := services.NewOrderEventsConsumer(
			aws_pkg.NewSQSConsumer(awsCfg, cfg.OrderEventsQueueURL, log), manager, metricsClient, log)
		go consumer.Start(ctx)
	}

	// --- HTTP ---
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		logger.RequestID(),
		middleware.RequestLogger(log),
		middleware.MetricsMiddleware(metricsClient, services.ServiceName),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.CORSAllowedOrigins),
		apperrors.ErrorMiddleware(),
	)

	routes.RegisterRoutes(r,
		controllers.NewInventoryController(manager),
		controllers.NewAdminController(admin),
		controllers.NewStreamController(bus, 0),
		routes.Options{JWTSecret: cfg.JWTSecret, ReservePerMinute: cfg.ReservePerMinute, RequestTimeout: cfg.RequestTimeout},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Cancelled on shutdown so open event streams end.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("Inventory Reservation Service starting",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.StoreBackend),
			zap.String("cache", cfg.CacheBackend),
			zap.String("instance", bus.Origin()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down Inventory Reservation Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	sweeper.Stop()
	// Sinks flush before the Kafka writer and Redis client they use are closed.
	if err := bus.Close(shutdownCtx); err != nil {
		log.Warn("Event sinks did not drain before shutdown", zap.Error(err))
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.Warn("Kafka writer close failed", zap.Error(err))
		}
	}
	closeRedis(redisClient, log)
	if err := database.Close(db); err != nil {
		log.Warn("Database close failed", zap.Error(err))
	}

	log.Info("Inventory Reservation Service stopped gracefully")
}

// listenForPeers keeps the Redis subscription alive until ctx ends.
func listenForPeers(ctx context.Context, b *events.RedisBroadcaster, origin string, relay *services.EventRelay, log *zap.Logger) {
	backoff := time.Second
	for {
		err := b.Listen(ctx, origin, relay.Handle)
		if ctx.Err() != nil {
			return
		}
		log.Warn("Inventory event subscription dropped, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func closeRedis(client *redis.Client, log *zap.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Warn("Redis close failed", zap.Error(err))
	}
}
