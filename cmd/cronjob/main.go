package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"dorm-ledger-service/internal/config"
	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/jobs"
	"dorm-ledger-service/internal/lock"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/metrics"
	"dorm-ledger-service/internal/money"
	"dorm-ledger-service/internal/repository/postgres"
	"dorm-ledger-service/internal/scheduler"
	"dorm-ledger-service/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit ('generate-dues', 'defaulter-digest', 'all')")
	periodFlag := flag.String("period", "", "Billing month for -run-once as YYYY-MM (defaults to the current month)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Dorm Ledger Cronjob Runner...", "log_level", cfg.Log.Level)

	if cfg.Database.Driver != config.DriverPostgres {
		log.Fatalf("Cronjob runner requires the postgres driver, got %q", cfg.Database.Driver)
	}

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db, cfg.QueryTimeout())

	// Initialize job lock
	var locker lock.Locker = lock.NoopLocker{}
	if cfg.Redis.Enabled {
		client, err := lock.NewRedisClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to redis", "error", err)
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, "")
		logger.Info("Redis job lock enabled", "addr", cfg.Redis.Addr)
	} else {
		logger.Warn("Redis disabled; jobs run without a cross-process lock")
	}

	m := metrics.New()

	// Initialize Services
	jobServices := &jobs.Services{
		Dues:        service.NewDuesService(store.BookingRepository, store.PaymentRepository, m),
		Delinquency: service.NewDelinquencyService(store.BookingRepository, store.PaymentRepository, cfg.Billing.DueDay, money.Money(cfg.Billing.LateFeePerDay)),
		Email:       service.NewEmailService(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName, cfg.Billing.Currency),
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(jobServices, locker, m, cfg)

	// Check if running a single job
	if *runOnce != "" {
		period := domain.PeriodOf(time.Now().UTC())
		if *periodFlag != "" {
			period, err = domain.ParsePeriod(*periodFlag)
			if err != nil {
				log.Fatalf("Invalid -period: %v", err)
			}
		}
		logger.Info("Running job once", "job", *runOnce, "period", period.String())
		if err := runJobOnce(jobRunner, *runOnce, period); err != nil {
			logger.Error("Job execution failed", "job", *runOnce, "error", err)
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		logger.Error("Failed to register jobs", "error", err)
		log.Fatalf("Failed to register jobs: %v", err)
	}

	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once for the given period
func runJobOnce(jobRunner *jobs.JobRunner, jobName string, period domain.Period) error {
	ctx := context.Background()
	switch jobName {
	case "generate-dues":
		return jobRunner.GenerateMonthlyDuesFor(ctx, period)
	case "defaulter-digest":
		return jobRunner.SendDefaulterDigestFor(ctx, period)
	case "all":
		return jobRunner.RunAll(ctx, period)
	default:
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - generate-dues\n")
		fmt.Printf("  - defaulter-digest\n")
		fmt.Printf("  - all\n")
		return fmt.Errorf("unknown job %q", jobName)
	}
}
