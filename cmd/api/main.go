package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anjiri1684/tutor_ledger/cache"
	config "github.com/anjiri1684/tutor_ledger/configs"
	"github.com/anjiri1684/tutor_ledger/database"
	"github.com/anjiri1684/tutor_ledger/handlers"
	"github.com/anjiri1684/tutor_ledger/jobs"
	"github.com/anjiri1684/tutor_ledger/middleware"
	"github.com/anjiri1684/tutor_ledger/notifications"
	"github.com/anjiri1684/tutor_ledger/observability"
	"github.com/anjiri1684/tutor_ledger/payments"
	"github.com/anjiri1684/tutor_ledger/repository"
	"github.com/anjiri1684/tutor_ledger/routes"
	"github.com/anjiri1684/tutor_ledger/services"
	"github.com/anjiri1684/tutor_ledger/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	observability.InitLogger()
	cfg := config.Load()
	shutdownTracing := observability.Setup("tutor-ledger", cfg.OTLPEndpoint)

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bookingRepo := repository.NewBookingRepository(db, cfg.StorageTimeout)
	walletRepo := repository.NewWalletRepository(db, cfg.StorageTimeout)
	txnRepo := repository.NewTransactionRepository(db, cfg.StorageTimeout)
	payoutRepo := repository.NewPayoutRepository(db, cfg.StorageTimeout)
	availabilityRepo := repository.NewAvailabilityRepository(db, cfg.StorageTimeout)
	directory := repository.NewDirectoryRepository(db, cfg.StorageTimeout)

	hub := websocket.NewHub()
	go hub.Run(ctx)

	sinks := []notifications.Sink{hub}
	if email := notifications.NewEmailService(cfg.BrevoAPIKey, cfg.EmailSender, cfg.EmailSenderName, directory); email != nil {
		sinks = append(sinks, email)
	}
	var publisher *notifications.EventPublisher
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		publisher = notifications.NewEventPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, publisher)
	}
	sink := notifications.NewFanout(10*time.Second, sinks...)

	var locker cache.Locker = cache.LocalLocker{}
	var redisClient *cache.Client
	if cfg.RedisAddr != "" {
		if client, err := cache.NewClient(cfg.RedisAddr); err == nil {
			redisClient = client
			locker = client
		} else {
			slog.Warn("redis unavailable, background jobs will not coordinate across replicas", "error", err)
		}
	}

	var provider payments.Provider = payments.OfflineProvider{}
	if cfg.MidtransServerKey != "" {
		provider = payments.NewMidtransProvider(cfg.MidtransServerKey, cfg.MidtransProduction)
	} else {
		slog.Warn("MIDTRANS_SERVER_KEY not set, payment intents are issued offline")
	}

	availability := services.NewAvailabilityService(availabilityRepo, bookingRepo, nil, nil)
	bookings := services.NewBookingService(bookingRepo, directory, sink, availability, services.BookingConfig{
		HoldTTL:  cfg.HoldTTL,
		Currency: cfg.Currency,
	})
	ledger := services.NewLedgerService(walletRepo, txnRepo, services.LedgerConfig{
		CommissionRate: cfg.CommissionRate,
	})
	h := &handlers.Handler{
		Bookings:     bookings,
		Availability: availability,
		Payments:     services.NewPaymentService(bookings, ledger, provider, directory, sink, services.VerifierConfig{Secret: cfg.PaymentSecret}),
		Ledger:       ledger,
		Payouts:      services.NewPayoutService(payoutRepo, txnRepo, ledger, sink, nil),
		Reschedules:  services.NewRescheduleService(bookingRepo, directory, availability, sink, nil),
	}

	c := cron.New()
	if _, err := c.AddJob(cfg.ExpirySchedule, jobs.NewHoldExpiryJob(bookings, locker, 30*time.Second)); err != nil {
		slog.Error("invalid hold expiry schedule", "schedule", cfg.ExpirySchedule, "error", err)
		os.Exit(1)
	}
	if _, err := c.AddJob("*/5 * * * *", jobs.NewReminderJob(bookings, locker, nil)); err != nil {
		slog.Error("could not schedule reminders", "error", err)
		os.Exit(1)
	}
	c.Start()
	slog.Info("background jobs scheduled", "expiry_schedule", cfg.ExpirySchedule)

	limiter := middleware.NewIPRateLimiter(5, 10)
	go limiter.RunCleanup(ctx.Done())

	app := fiber.New(fiber.Config{
		AppName:       "Tutor Ledger",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.PublicRoutes(app)
	routes.BookingRoutes(app, h, cfg.JWTSecret)
	routes.PaymentRoutes(app, h, limiter)
	routes.TeacherRoutes(app, h, cfg.JWTSecret)
	routes.AdminRoutes(app, h, cfg.JWTSecret)
	routes.RealtimeRoutes(app, hub, cfg.JWTSecret)

	go func() {
		slog.Info("server is running", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	<-c.Stop().Done()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			slog.Error("kafka writer close failed", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("redis close failed", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracer shutdown failed", "error", err)
	}
	slog.Info("server exited")
}
