package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	httpapi "dorm-ledger-service/internal/api/http"
	"dorm-ledger-service/internal/config"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/metrics"
	"dorm-ledger-service/internal/money"
	"dorm-ledger-service/internal/repository"
	"dorm-ledger-service/internal/repository/memory"
	"dorm-ledger-service/internal/repository/postgres"
	"dorm-ledger-service/internal/security"
	"dorm-ledger-service/internal/service"
	"dorm-ledger-service/internal/storage"
)

// repos is the set of repositories both store drivers provide.
type repos struct {
	bookings      repository.BookingRepository
	payments      repository.PaymentRepository
	refunds       repository.RefundRepository
	actions       repository.PaymentActionRepository
	notifications repository.NotificationRepository
	health        func(ctx context.Context) error
	close         func()
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	migrate := flag.Bool("migrate", false, "Apply the database schema before serving")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Dorm Ledger Service...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Billing configuration", "due_day", cfg.Billing.DueDay, "late_fee_per_day", cfg.Billing.LateFeePerDay, "currency", cfg.Billing.Currency)

	// Initialize store
	store, err := openStore(cfg, *migrate)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.close()

	// Initialize receipt storage
	receiptStore, err := storage.NewLocalReceiptStorage(storage.Config{
		UploadDir:    cfg.Storage.UploadDir,
		MaxFileSize:  cfg.Storage.MaxFileSize << 20,
		AllowedTypes: cfg.Storage.AllowedTypes,
	})
	if err != nil {
		logger.Error("Failed to initialize receipt storage", "error", err)
		log.Fatalf("Failed to initialize receipt storage: %v", err)
	}
	logger.Info("Receipt storage ready", "upload_dir", cfg.Storage.UploadDir)

	m := metrics.New()

	// Initialize Services
	emailSvc := service.NewEmailService(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName, cfg.Billing.Currency)
	noteSvc := service.NewNotificationService(store.notifications, emailSvc, cfg.Email.WardenUserIDs, cfg.Email.WardenEmails)
	services := httpapi.Services{
		Ledger:        service.NewLedgerService(store.bookings, store.payments, store.refunds),
		Payments:      service.NewPaymentService(store.bookings, store.payments, store.actions, noteSvc, m),
		Refunds:       service.NewRefundService(store.bookings, store.payments, store.refunds, noteSvc, m),
		Dues:          service.NewDuesService(store.bookings, store.payments, m),
		Delinquency:   service.NewDelinquencyService(store.bookings, store.payments, cfg.Billing.DueDay, money.Money(cfg.Billing.LateFeePerDay)),
		Notifications: noteSvc,
		Receipts:      service.NewReceiptService(store.bookings, receiptStore),
		Health:        store.health,
	}

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())

	handler := httpapi.NewHandler(services, cfg.Storage.MaxFileSize<<20)
	router := httpapi.NewRouter(handler, httpapi.NewAuthMiddleware(tokenManager), m)

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down HTTP server...", "timeout", cfg.ShutdownTimeout())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}

func openStore(cfg *config.Config, migrate bool) (*repos, error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("Using in-memory store; data is lost on restart")
		st := memory.NewStore()
		if cfg.Database.SeedBookings != "" {
			n, err := st.SeedBookingsFile(cfg.Database.SeedBookings)
			if err != nil {
				return nil, err
			}
			logger.Info("Seeded bookings", "count", n, "file", cfg.Database.SeedBookings)
		}
		return &repos{
			bookings:      st.BookingRepository,
			payments:      st.PaymentRepository,
			refunds:       st.RefundRepository,
			actions:       st.PaymentActionRepository,
			notifications: st.NotificationRepository,
			close:         func() {},
		}, nil
	}

	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("Database schema applied")
	}

	st := postgres.NewStore(db, cfg.QueryTimeout())
	return &repos{
		bookings:      st.BookingRepository,
		payments:      st.PaymentRepository,
		refunds:       st.RefundRepository,
		actions:       st.PaymentActionRepository,
		notifications: st.NotificationRepository,
		health:        st.Ping,
		close:         func() { db.Close() },
	}, nil
}
