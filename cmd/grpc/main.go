package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/config"
	"github.com/fekuna/omnipos-stock-ledger/internal/availability"
	"github.com/fekuna/omnipos-stock-ledger/internal/costing"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/ledger"
	"github.com/fekuna/omnipos-stock-ledger/internal/metrics"
	"github.com/fekuna/omnipos-stock-ledger/internal/purchasing"
	"github.com/fekuna/omnipos-stock-ledger/internal/reservation"
	"github.com/fekuna/omnipos-stock-ledger/internal/variant"
	"github.com/fekuna/omnipos-stock-ledger/pkg/broker"
	"github.com/fekuna/omnipos-stock-ledger/pkg/cache"
	"github.com/fekuna/omnipos-stock-ledger/pkg/database/postgres"
	"github.com/fekuna/omnipos-stock-ledger/pkg/httpserver"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"

	invH "github.com/fekuna/omnipos-stock-ledger/internal/inventory/handler"
	invListenerPkg "github.com/fekuna/omnipos-stock-ledger/internal/inventory/listener"
	invRepoPkg "github.com/fekuna/omnipos-stock-ledger/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-stock-ledger/internal/inventory/usecase"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
		logConfig.Level = cfg.Logger.Level
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// 4. Store
	var invRepo inventory.Repository
	switch cfg.Store {
	case config.StoreMemory:
		invRepo = invRepoPkg.NewMemoryRepository()
		appLogger.Warn("Using in-memory stock store, state is lost on restart")
	case config.StorePostgres:
		db, err := postgres.NewPostgres(&postgres.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			DBName:          cfg.Postgres.DBName,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to database", zap.Error(err))
		}
		defer db.Close()
		appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

		if cfg.Postgres.RunMigrations {
			if err := invRepoPkg.Migrate(ctx, db); err != nil {
				appLogger.Fatal("Could not migrate database", zap.Error(err))
			}
			appLogger.Info("Database migrations applied")
		}
		invRepo = invRepoPkg.NewPGRepository(db)
	default:
		appLogger.Fatal("Unknown store driver", zap.String("store", cfg.Store))
	}

	// 5. Redis: sweep lock and availability projection
	var notifiers availability.Fanout
	var sweepLock reservation.Locker
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

		sweepLock = redisClient
		notifiers = append(notifiers, availability.NewRedisProjector(redisClient.Client, cfg.Redis.ProjectionTTL))
	}

	// 6. Kafka: stock-changed producer
	var kafkaConsumer *broker.KafkaConsumer
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.StockTopic,
		})
		defer producer.Close()
		notifiers = append(notifiers, availability.NewKafkaNotifier(producer))

		kafkaConsumer = broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.OrdersTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer kafkaConsumer.Close()
		appLogger.Info("Connected to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("orders_topic", cfg.Kafka.OrdersTopic),
			zap.String("stock_topic", cfg.Kafka.StockTopic),
		)
	}

	// 7. Domain
	ledgerOpts := []ledger.Option{ledger.WithMetrics(appMetrics)}
	if len(notifiers) > 0 {
		ledgerOpts = append(ledgerOpts, ledger.WithNotifier(notifiers))
	}
	stockLedger := ledger.New(invRepo, appLogger, ledgerOpts...)
	batchStore := costing.NewBatchStore(invRepo)
	reservations := reservation.NewManager(stockLedger, costing.NewAllocator(), appMetrics, appLogger)
	processor := purchasing.NewProcessor(stockLedger, batchStore, appMetrics, appLogger)
	matrix := variant.NewMatrix(cfg.Variant.MaxCombinations)

	invUC := invUCPkg.NewInventoryUseCase(stockLedger, reservations, processor, batchStore, matrix, appLogger)

	// 8. Background workers
	sweeper := reservation.NewSweeper(reservations, sweepLock, reservation.SweeperConfig{
		Interval:  cfg.Reservation.SweepInterval,
		BatchSize: cfg.Reservation.SweepBatchSize,
	}, appMetrics, appLogger)
	go sweeper.Start(ctx)

	if kafkaConsumer != nil {
		invListener := invListenerPkg.NewInventoryListener(kafkaConsumer, invUC, appLogger)
		go invListener.Start(ctx)
	}

	httpServer := httpserver.New(cfg.Server.HTTPPort, registry)
	go func() {
		if err := httpServer.Start(); err != nil {
			appLogger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	// 9. Start gRPC Server
	invHandler := invH.NewInventoryHandler(invUC, cfg.Reservation.DefaultCartTTL, appLogger)

	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(invH.LoggingInterceptor(appLogger)),
	)

	invH.RegisterInventoryServiceServer(grpcServer, invHandler)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(invH.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port), zap.String("http_port", cfg.Server.HTTPPort))

	// Graceful Shutdown
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()
	grpcServer.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP server shutdown", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
