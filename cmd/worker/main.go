package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/config"
	"github.com/Domenick1991/skyreserve/internal/email"
	"github.com/Domenick1991/skyreserve/internal/events"
	"github.com/Domenick1991/skyreserve/internal/kafka"
	"github.com/Domenick1991/skyreserve/internal/logger"
	"github.com/Domenick1991/skyreserve/internal/repository"
	"github.com/Domenick1991/skyreserve/internal/service/inventory"
	"github.com/Domenick1991/skyreserve/internal/service/reservation"
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

	pool, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()
	store := repository.NewPGStore(pool)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, lg)
	defer producer.Close()

	publisher := events.NewPublisher(producer, cfg.Kafka.ReservationEventsTopic, lg,
		events.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)
	reservationService := reservation.NewReservationService(store, inventory.NewManager(store, lg), publisher, lg)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, lg)
	defer consumer.Close()

	emailSender := email.NewSender(lg)

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var event events.Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				lg.Warn("decode event", zap.Int64("offset", msg.Offset), zap.Error(err))
				return nil
			}
			return emailSender.Send(ctx, event)
		}); err != nil {
			lg.Error("consumer stopped", zap.Error(err))
		}
	}()

	expireTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer expireTicker.Stop()

	lg.Info("worker started",
		zap.String("topic", cfg.Kafka.NotificationsTopic),
		zap.Duration("pending_hold", cfg.Booking.PendingHold()),
	)

	for {
		select {
		case <-expireTicker.C:
			expired, err := reservationService.ExpireStalePending(ctx, cfg.Booking.PendingHold())
			if err != nil {
				lg.Error("expire reservations", zap.Error(err))
				continue
			}
			if len(expired) > 0 {
				lg.Info("expired reservations", zap.Int("count", len(expired)))
			}
		case <-ctx.Done():
			lg.Info("shutting down worker")
			return
		}
	}
}
