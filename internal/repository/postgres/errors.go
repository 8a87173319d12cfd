package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"

	"dorm-ledger-service/internal/domain"
)

// DefaultQueryTimeout bounds every store call when the caller configures none.
const DefaultQueryTimeout = 5 * time.Second

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// translateError maps driver errors onto domain error kinds. Transient
// failures become domain.ErrStoreUnavailable so callers know to retry.
func translateError(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsDomainError(err); ok {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewError(domain.ErrNotFound, what+" not found")
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", what, err)
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", what, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "08"): // connection exception
			return true
		case strings.HasPrefix(code, "53"): // insufficient resources
			return true
		case code == "40001", code == "40P01": // serialization failure, deadlock
			return true
		case code == "57014", code == "57P01", code == "57P03": // query canceled, admin shutdown, cannot connect now
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func statusStrings(statuses []domain.PaymentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// paymentReferenced reports a delete blocked by refund_requests.payment_id.
func paymentReferenced(id int32) error {
	return domain.NewError(domain.ErrInvalidTransition, fmt.Sprintf("payment %d is referenced by refund requests", id))
}
