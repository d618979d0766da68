package main

import (
	"context"
	"time"

	"qrparking/internal/bootstrap"
	"qrparking/internal/events"
	historyrepo "qrparking/internal/history/repository"
	historyservice "qrparking/internal/history/service"
	"qrparking/internal/lifecycle"
	"qrparking/internal/qrcode"
	slotshandler "qrparking/internal/slots/handler"
	slotsrepo "qrparking/internal/slots/repository"
	slotsservice "qrparking/internal/slots/service"
	"qrparking/internal/slots/validator"
	"qrparking/internal/sweeper"
	usershandler "qrparking/internal/users/handler"
	usersrepo "qrparking/internal/users/repository"
	usersservice "qrparking/internal/users/service"
	"qrparking/pkg/app"
	"qrparking/pkg/auth"
	"qrparking/pkg/clock"
	"qrparking/pkg/config"
	"qrparking/pkg/contracts"
	"qrparking/pkg/kafka"
	kafka_config "qrparking/pkg/kafka/config"
	kafka_middleware "qrparking/pkg/kafka/middleware"
)

const (
	ServiceName = "parking"

	bootstrapTimeout = 30 * time.Second
)

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting QR parking service")

	clk := clock.System()
	slotRepo := slotsrepo.NewMongoSlotRepository(cfg)
	userRepo := usersrepo.NewMongoUserRepository(cfg)
	historyRepo := historyrepo.NewMongoCompletedParkingRepository(cfg)

	runBootstrap(cfg, slotRepo, userRepo, clk)

	publisher, metrics := initPublisher(cfg)

	historyService := historyservice.NewHistoryService(historyRepo, cfg)
	slotService := slotsservice.NewSlotService(
		slotRepo,
		userRepo,
		historyService,
		lifecycle.NewEngine(cfg.ReservationWindow, cfg.PricePerHour),
		qrcode.NewRenderer(qrcode.DefaultSize),
		publisher,
		validator.NewSlotValidator(),
		clk,
		cfg,
	)
	userService := usersservice.NewUserService(userRepo, slotService, clk, cfg)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, auth.NewVerifier(cfg.JWTSecret), app.Routes{
		Health: slotshandler.NewHealthHandler(cfg.Client.Mongo, metrics, cfg.Log),
		User: []contracts.Handler{
			slotshandler.NewSlotHandler(slotService, historyService, cfg.Log),
		},
		Admin: []contracts.Handler{
			slotshandler.NewAdminHandler(slotService, historyService, cfg.Log),
			usershandler.NewUserHandler(userService, cfg.Log),
		},
	})

	if cfg.ExpirySweepInterval > 0 {
		sw := sweeper.New(slotService, cfg.ExpirySweepInterval, cfg.RequestTimeout, cfg.Log)
		sw.Start(context.Background())
		serverApp.OnShutdown(sw.Stop)
	} else {
		cfg.Log.Info("Expiry sweeper disabled; reservations expire lazily on access")
	}

	serverApp.OnShutdown(func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close event publisher", "error", err)
		}
	})

	serverApp.Run()
}

func runBootstrap(cfg *config.Config, slots bootstrap.SlotSeeder, users bootstrap.AdminStore, clk clock.Clock) {
	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	if err := bootstrap.New(slots, users, cfg, clk.Now).Run(ctx); err != nil {
		cfg.Log.Fatal("Bootstrap failed", "error", err)
	}
}

// initPublisher returns the lifecycle event publisher. With Kafka disabled
// events are dropped and no metrics are reported.
func initPublisher(cfg *config.Config) (events.Publisher, *kafka_middleware.Metrics) {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka disabled; lifecycle events will not be published")
		return events.Noop(), nil
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaLifecycleTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	metrics := kafka_middleware.NewMetrics()
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(metrics.Middleware())

	cfg.Log.Info("Lifecycle events enabled", "topic", cfg.KafkaLifecycleTopic)
	return events.NewKafkaPublisher(producer, kafkaCfg.PublishTimeout, cfg.Log), metrics
}
