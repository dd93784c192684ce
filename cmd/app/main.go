package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/api"
	"github.com/Domenick1991/skyreserve/config"
	"github.com/Domenick1991/skyreserve/internal/bootstrap"
	"github.com/Domenick1991/skyreserve/internal/cache"
	"github.com/Domenick1991/skyreserve/internal/events"
	"github.com/Domenick1991/skyreserve/internal/kafka"
	"github.com/Domenick1991/skyreserve/internal/logger"
	"github.com/Domenick1991/skyreserve/internal/realtime"
	"github.com/Domenick1991/skyreserve/internal/repository"
	"github.com/Domenick1991/skyreserve/internal/service/flights"
	"github.com/Domenick1991/skyreserve/internal/service/inventory"
	"github.com/Domenick1991/skyreserve/internal/service/payment"
	"github.com/Domenick1991/skyreserve/internal/service/reservation"
	"github.com/Domenick1991/skyreserve/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		lg.Fatal("init tracing", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	pool, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()
	if err := repository.Migrate(ctx, pool); err != nil {
		lg.Fatal("migrate", zap.Error(err))
	}
	store := repository.NewPGStore(pool)

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.FlightCacheDuration())
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		lg.Warn("redis unavailable, flight cache and idempotency degrade", zap.Error(err))
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, lg)
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		lg.Warn("kafka unavailable, events will be dropped", zap.Error(err))
	}

	hub := realtime.NewHub(lg)
	go hub.Run(ctx)

	publisher := events.NewPublisher(producer, cfg.Kafka.ReservationEventsTopic, lg,
		events.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		events.WithSeatBroadcaster(hub),
	)

	seats := inventory.NewManager(store, lg)
	reservationService := reservation.NewReservationService(store, seats, publisher, lg)
	paymentService := payment.NewPaymentService(store, reservationService, publisher, cfg.Payment, lg)
	flightService := flights.NewFlightService(store, seats, reservationService, redisCache, publisher, lg)

	router := api.NewRouter(api.RouterDeps{
		Flights:        flightService,
		Seats:          seats,
		Watcher:        hub,
		Reservations:   reservationService,
		Payments:       paymentService,
		Auth:           api.NewAuthenticator(cfg.Auth.JWTSecret),
		Idempotency:    redisCache,
		IdempotencyTTL: cfg.Booking.IdempotencyTTL(),
		Logger:         lg,
	})

	if err := bootstrap.Run(ctx, cfg, router, lg); err != nil {
		lg.Fatal("server error", zap.Error(err))
	}
}
