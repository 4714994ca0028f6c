package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/shopcore/fulfillment/internal/cart"
	"github.com/shopcore/fulfillment/internal/catalog"
	"github.com/shopcore/fulfillment/internal/events"
	"github.com/shopcore/fulfillment/internal/httpapi"
	"github.com/shopcore/fulfillment/internal/inventory"
	"github.com/shopcore/fulfillment/internal/order"
	"github.com/shopcore/fulfillment/internal/payment"
	"github.com/shopcore/fulfillment/internal/pricing"
	"github.com/shopcore/fulfillment/internal/telemetry"
)

type Config struct {
	HTTPPort        string
	ShutdownTimeout time.Duration

	RedisAddr string

	MongoURI string
	MongoDB  string

	PostgresHost          string
	PostgresPort          int
	PostgresUser          string
	PostgresPassword      string
	PostgresDB            string
	OrderMigrationsPath   string
	CatalogDBPath         string
	CatalogMigrationsPath string

	KafkaBrokers string
	KafkaTopic   string
	PollInterval time.Duration

	TaxRate        decimal.Decimal
	ShippingFlat   decimal.Decimal
	GatewayTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ShutdownTimeout: 10 * time.Second,

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		MongoURI: os.Getenv("MONGO_URI"),
		MongoDB:  getEnv("MONGO_DB", "fulfillment"),

		PostgresHost:          os.Getenv("POSTGRES_HOST"),
		PostgresPort:          getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:          getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:      getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:            getEnv("POSTGRES_DB", "fulfillment"),
		OrderMigrationsPath:   getEnv("ORDER_MIGRATIONS_PATH", "internal/order/migrations"),
		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "internal/catalog/migrations"),

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "fulfillment-events"),
		PollInterval: 2 * time.Second,

		TaxRate:        getEnvDecimal("TAX_RATE", decimal.Zero),
		ShippingFlat:   getEnvDecimal("SHIPPING_FLAT", decimal.Zero),
		GatewayTimeout: 5 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on environment")
	}
	telemetry.InitLogger()

	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	// Cart storage: mongo when configured, in-memory otherwise.
	var cartRepo cart.Repository = cart.NewMemoryRepository()
	if cfg.MongoURI != "" {
		db, err := cart.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			slog.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}
		cartRepo = cart.NewMongoRepository(db)
		slog.Info("cart storage: mongodb", "database", cfg.MongoDB)
	}
	carts := cart.NewService(cartRepo, cart.NewRedisCache(redisClient))

	// Orders and the outbox share a store: postgres when configured.
	var (
		orderRepo order.Repository
		outbox    events.Outbox
	)
	if cfg.PostgresHost != "" {
		creds := &order.Credentials{
			Host:              cfg.PostgresHost,
			Port:              cfg.PostgresPort,
			User:              cfg.PostgresUser,
			Password:          cfg.PostgresPassword,
			DBName:            cfg.PostgresDB,
			MigrationsDirPath: cfg.OrderMigrationsPath,
		}
		pg, err := order.NewPostgresRepository(creds)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.RunMigrations(creds); err != nil {
			slog.Error("failed to run order migrations", "error", err)
			os.Exit(1)
		}
		orderRepo = pg
		outbox = pg
		slog.Info("order storage: postgres", "host", cfg.PostgresHost)
	} else {
		orderRepo = order.NewMemoryRepository()
		outbox = events.NewMemoryOutbox()
	}

	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		slog.Error("failed to open catalog database", "error", err)
		os.Exit(1)
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		slog.Error("failed to run catalog migrations", "error", err)
		os.Exit(1)
	}

	ledger := inventory.NewMemoryLedger(outbox)
	defer ledger.Close()
	seeded, err := inventory.SeedFromCatalog(ctx, ledger, catalogRepo)
	if err != nil {
		slog.Error("failed to seed inventory from catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("inventory ledger seeded from catalog", "items", seeded)

	engine := pricing.NewEngine(catalogRepo, pricing.NewMemoryStore(), orderRepo)
	orders := order.NewService(orderRepo, carts, engine, ledger, outbox, order.CostPolicy{
		TaxRate:      cfg.TaxRate,
		ShippingFlat: cfg.ShippingFlat,
	})

	gateway := payment.NewBreakerGateway(
		payment.NewSimulatedGateway(payment.RandomStatus{}),
		cfg.GatewayTimeout,
	)
	payments := payment.NewCoordinator(
		payment.NewMemoryRepository(),
		orders,
		gateway,
		payment.StaticScorer{Score: 0.1},
		payment.NewRedisIdempotencyStore(redisClient),
		outbox,
	)

	// Outbox poller ships events to kafka when brokers are configured.
	if cfg.KafkaBrokers != "" {
		publisher := events.NewKafkaPublisher(cfg.KafkaTopic, strings.Split(cfg.KafkaBrokers, ",")...)
		defer publisher.Close()
		poller := events.NewPoller(outbox, publisher, cfg.PollInterval)
		go poller.Run(ctx)
		slog.Info("outbox poller started", "topic", cfg.KafkaTopic)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpapi.NewRouter(carts, orders, payments),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("fulfillment server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited")
}
