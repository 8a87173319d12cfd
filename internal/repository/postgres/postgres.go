package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	_ "github.com/lib/pq"

	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
	repository.BookingRepository
	repository.PaymentRepository
	repository.RefundRepository
	repository.PaymentActionRepository
	repository.NotificationRepository
}

// NewStore wires every repository onto one connection pool. queryTimeout
// bounds each store call; zero selects DefaultQueryTimeout.
func NewStore(db *sql.DB, queryTimeout time.Duration) *Store {
	return &Store{
		db:                      db,
		BookingRepository:       NewBookingRepository(db, queryTimeout),
		PaymentRepository:       NewPaymentRepository(db, queryTimeout),
		RefundRepository:        NewRefundRepository(db, queryTimeout),
		PaymentActionRepository: NewPaymentActionRepository(db, queryTimeout),
		NotificationRepository:  NewNotificationRepository(db, queryTimeout),
	}
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	logger.EnterMethod("postgres.Migrate")
	_, err := db.ExecContext(ctx, schemaSQL)
	if err != nil {
		logger.ExitMethodWithError("postgres.Migrate", err)
		return err
	}
	logger.ExitMethod("postgres.Migrate")
	return nil
}

// Ping checks connectivity within the store timeout.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, 0)
	defer cancel()
	return translateError(s.db.PingContext(ctx), "ping")
}
