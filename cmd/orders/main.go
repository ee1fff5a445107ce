package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"marketplace/internal/orders/adapters"
	"marketplace/internal/orders/application"
	"marketplace/internal/orders/domain"
	"marketplace/internal/orders/infrastructure"
	"marketplace/internal/orders/ports"
	"marketplace/pkg/config"
	"marketplace/pkg/db"
	"marketplace/pkg/events"
	grpcpkg "marketplace/pkg/grpc"
	"marketplace/pkg/logger"
	"marketplace/pkg/middleware"
	"marketplace/pkg/rabbitmq"
	"marketplace/pkg/tls"
)

func main() {
	// Load configuration
	cfg := config.LoadForService("ORDERS")

	// Initialize logger
	log := logger.NewWithFormat("orders-service", cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	log.Info("starting orders service")

	// Connect to database
	dbConn, err := db.NewConnection(db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Timeout:  cfg.DBTimeout,
		MaxOpen:  cfg.DBMaxOpen,
		MaxIdle:  cfg.DBMaxIdle,
	})
	if err != nil {
		log.Fatal("failed to connect to database: " + err.Error())
	}
	defer db.Close(dbConn)
	log.Info("connected to database")

	// Initialize store and run migrations
	store := adapters.NewPostgresStore(dbConn)
	if err := store.Migrate(); err != nil {
		log.Fatal("failed to migrate database: " + err.Error())
	}
	if err := store.EnsureCashbackSetting(context.Background(), domain.CashbackSetting{
		Percentage:         cfg.CashbackPercentage,
		ValidityPeriodDays: cfg.CashbackValidityDays,
		MinimumOrderAmount: cfg.CashbackMinimumOrder,
		IsActive:           true,
	}); err != nil {
		log.Fatal("failed to seed cashback setting: " + err.Error())
	}

	// Connect to Redis; the balance cache is optional
	var cache ports.BalanceCache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.DBTimeout)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("failed to connect to Redis, balance cache disabled: " + err.Error())
	} else {
		cache = adapters.NewRedisBalanceCache(redisClient, "orders", cfg.BalanceCacheTTL)
		log.Info("connected to Redis")
	}
	pingCancel()

	// Connect to RabbitMQ
	var publisher ports.EventPublisher
	rabbitConn, err := rabbitmq.NewConnection(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("failed to connect to RabbitMQ, events will be disabled: " + err.Error())
	} else {
		defer rabbitConn.Close()

		pub, err := rabbitmq.NewPublisher(rabbitConn, events.ExchangeOrders, log)
		if err != nil {
			log.Warn("failed to create publisher: " + err.Error())
		} else {
			publisher = adapters.NewRabbitMQPublisher(pub, log)
		}
	}

	// Initialize use case
	useCase := application.NewOrderUseCase(store, store, publisher, cache, log, application.Config{
		ConflictRetries: cfg.ConflictRetries,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume delivery confirmations
	if rabbitConn != nil {
		consumer, err := adapters.NewDeliveryCompletedConsumer(rabbitConn, markDelivered(useCase), log)
		if err != nil {
			log.Warn("failed to create DeliveryCompleted consumer: " + err.Error())
		} else if err := consumer.Start(ctx); err != nil {
			log.Warn("failed to start consumer: " + err.Error())
		}
	}

	// Remind customers about expiring cashback
	worker := infrastructure.NewExpiryWorker(useCase, cfg.ExpiryCheckInterval, cfg.ExpiryWarningWindow, log)
	go worker.Run(ctx)

	// Start HTTP server
	httpHandler := infrastructure.NewHTTPHandler(useCase)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.TraceID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.ActorIdentity())

	api := router.Group("/api/v1")
	httpHandler.RegisterRoutes(api)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
	}
	if cfg.TLSEnabled {
		tlsConfig, err := tls.ServerConfig(tlsFiles(cfg), false)
		if err != nil {
			log.Fatal("failed to load TLS config: " + err.Error())
		}
		httpServer.TLSConfig = tlsConfig
	}

	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.HTTPPort), zap.Bool("tls", cfg.TLSEnabled))
		var err error
		if cfg.TLSEnabled {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error: " + err.Error())
		}
	}()

	// Start gRPC server
	grpcServer := setupGRPCServer(cfg, log)
	health := infrastructure.NewGRPCHealth(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal("failed to listen for gRPC: " + err.Error())
	}

	go func() {
		log.Info("gRPC server listening on :" + cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("gRPC server error: " + err.Error())
		}
	}()
	health.MarkServing()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down servers...")
	health.Shutdown()
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	grpcServer.GracefulStop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error: " + err.Error())
	}

	log.Info("servers stopped")
}

func setupGRPCServer(cfg *config.Config, log *logger.Logger) *grpc.Server {
	var opts []grpc.ServerOption

	// Add interceptors
	opts = append(opts,
		grpc.UnaryInterceptor(grpcpkg.UnaryServerInterceptor(log, cfg.GRPCTimeout)),
		grpc.StreamInterceptor(grpcpkg.StreamServerInterceptor(log)),
	)

	// Configure mTLS if enabled
	if cfg.GRPCMTLSEnabled {
		tlsConfig, err := tls.ServerConfig(tlsFiles(cfg), true)
		if err != nil {
			log.Fatal("failed to load TLS config: " + err.Error())
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
		log.Info("gRPC mTLS enabled")
	}

	return grpc.NewServer(opts...)
}

func tlsFiles(cfg *config.Config) tls.Files {
	return tls.Files{Cert: cfg.TLSCertFile, Key: cfg.TLSKeyFile, CA: cfg.TLSCAFile}
}

// markDelivered adapts the use case to the delivery consumer
func markDelivered(uc *application.OrderUseCase) adapters.MarkDelivered {
	return func(ctx context.Context, orderID uint, actor domain.Actor, notes string) error {
		_, err := uc.ChangeOrderStatus(ctx, application.ChangeStatusInput{
			OrderID: orderID,
			Status:  domain.OrderStatusDelivered,
			Actor:   actor,
			Notes:   notes,
		})
		return err
	}
}
