package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/tutorlink/api/internal/app"
	"github.com/tutorlink/api/internal/handlers"
	"github.com/tutorlink/api/internal/mailer"
	"github.com/tutorlink/api/internal/notify"
	"github.com/tutorlink/api/internal/payments"
	"github.com/tutorlink/api/internal/repository"
	"github.com/tutorlink/api/internal/service"
	"github.com/tutorlink/api/internal/video"
	"github.com/tutorlink/api/migrations"
	"github.com/tutorlink/api/pkg/config"
	"github.com/tutorlink/api/pkg/database"
	"github.com/tutorlink/api/pkg/events"
	"github.com/tutorlink/api/pkg/logger"
	mw "github.com/tutorlink/api/pkg/middleware"
)

func main() {
	cfg := config.Load()

	// Connect to database and apply migrations
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, migrations.FS); err != nil {
		logger.Error("Failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Connect to the real-time notification broker
	broker, err := notify.NewRedisBroker(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool)
	walletRepo := repository.NewWalletRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	// Initialize services
	notifyService := service.NewNotifyService(notificationRepo, broker)
	walletService := service.NewWalletService(walletRepo, notifyService, eventBus)
	issuer := video.NewConferenceIssuer(cfg.Video.TokenSecret, cfg.Video.RoomPrefix)
	sessionService := service.NewSessionService(sessionRepo, walletService, notifyService, issuer, eventBus, cfg)
	bookingService := service.NewBookingService(bookingRepo, userRepo, walletService, sessionService, notifyService, eventBus, cfg)
	authService := service.NewAuthService(userRepo, walletService, cfg)
	gateway := payments.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.Currency)

	// Email consumer on the event bus
	var mailSvc mailer.Service
	if cfg.Email.DevMode {
		mailSvc = mailer.NewDevMailer()
	} else {
		mailSvc = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}
	consumer := notify.NewEmailConsumer(eventBus, mailSvc, cfg.NATS.Queue)
	if err := consumer.Start(); err != nil {
		logger.Error("Failed to start email consumer", "error", err)
		os.Exit(1)
	}

	// Background lifecycle sweeper
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := app.NewSweeper(bookingService, sessionService, cfg.Booking.SweepInterval)
	go sweeper.Run(sweepCtx)

	// Initialize handlers
	h := handlers.New(authService, bookingService, sessionService, walletService, notifyService, gateway, cfg)

	// Setup router
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("api"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h.Routes(r)

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server...")
		stopSweeper()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("API server starting", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
