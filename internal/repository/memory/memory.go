// Package memory is an in-process store with the same guarantees as the
// postgres store: compare-and-swap updates, one rent due per booking and
// period, and serialized refund checks. It backs the dev server mode and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/money"
	"dorm-ledger-service/internal/repository"
)

type state struct {
	mu            sync.Mutex
	bookings      map[int32]domain.Booking
	payments      map[int32]domain.Payment
	refunds       map[int32]domain.RefundRequest
	actions       []domain.PaymentAction
	notifications []domain.Notification
	nextID        int32
}

type dueKey struct {
	bookingID int32
	period    domain.Period
}

type Store struct {
	s *state
	repository.BookingRepository
	repository.PaymentRepository
	repository.RefundRepository
	repository.PaymentActionRepository
	repository.NotificationRepository
}

func NewStore() *Store {
	s := &state{
		bookings: map[int32]domain.Booking{},
		payments: map[int32]domain.Payment{},
		refunds:  map[int32]domain.RefundRequest{},
	}
	return &Store{
		s:                       s,
		BookingRepository:       &bookingRepository{s},
		PaymentRepository:       &paymentRepository{s},
		RefundRepository:        &refundRepository{s},
		PaymentActionRepository: &paymentActionRepository{s},
		NotificationRepository:  &notificationRepository{s},
	}
}

// PutBooking inserts or replaces a booking. Bookings are owned by another
// workflow; this is how they get here.
func (st *Store) PutBooking(b domain.Booking) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = time.Now()
	st.s.bookings[b.ID] = b
}

func (s *state) id() int32 {
	s.nextID++
	return s.nextID
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return err
	}
	return nil
}

func notFound(what string, id int32) error {
	return domain.NewError(domain.ErrNotFound, fmt.Sprintf("%s %d not found", what, id))
}

type bookingRepository struct{ s *state }

func (r *bookingRepository) GetByID(ctx context.Context, id int32) (*domain.Booking, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, notFound("booking", id)
	}
	return &b, nil
}

func (r *bookingRepository) ListByStatus(ctx context.Context, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Booking{}
	for _, b := range r.s.bookings {
		if len(statuses) == 0 || containsBookingStatus(statuses, b.Status) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func containsBookingStatus(list []domain.BookingStatus, s domain.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type paymentRepository struct{ s *state }

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bookings[p.BookingID]; !ok {
		return notFound("booking", p.BookingID)
	}
	if p.Type == domain.PaymentTypeRent && p.BillingPeriod != nil && r.s.hasDue(dueKey{p.BookingID, *p.BillingPeriod}) {
		return domain.NewError(domain.ErrDuplicateDue,
			fmt.Sprintf("booking %d already has a rent due for %s", p.BookingID, p.BillingPeriod))
	}
	r.s.insertPayment(p)
	return nil
}

func (s *state) hasDue(key dueKey) bool {
	for _, p := range s.payments {
		if p.BookingID == key.bookingID && p.IsRentFor(key.period) {
			return true
		}
	}
	return false
}

func (s *state) insertPayment(p *domain.Payment) {
	now := time.Now()
	p.ID = s.id()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.payments[p.ID] = clonePayment(*p)
}

func clonePayment(p domain.Payment) domain.Payment {
	if p.BillingPeriod != nil {
		period := *p.BillingPeriod
		p.BillingPeriod = &period
	}
	if p.ReviewedAt != nil {
		t := *p.ReviewedAt
		p.ReviewedAt = &t
	}
	if p.ReviewedBy != nil {
		id := *p.ReviewedBy
		p.ReviewedBy = &id
	}
	if p.CreatedBy != nil {
		id := *p.CreatedBy
		p.CreatedBy = &id
	}
	return p
}

func (r *paymentRepository) GetByID(ctx context.Context, id int32) (*domain.Payment, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	p = clonePayment(p)
	return &p, nil
}

func (r *paymentRepository) ListByBooking(ctx context.Context, bookingID int32) ([]domain.Payment, error) {
	return r.List(ctx, domain.PaymentFilter{BookingID: bookingID})
}

func (r *paymentRepository) ListByBookings(ctx context.Context, bookingIDs []int32) ([]domain.Payment, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	wanted := map[int32]bool{}
	for _, id := range bookingIDs {
		wanted[id] = true
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range r.s.payments {
		if wanted[p.BookingID] {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *paymentRepository) List(ctx context.Context, f domain.PaymentFilter) ([]domain.Payment, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range r.s.payments {
		if f.BookingID > 0 && p.BookingID != f.BookingID {
			continue
		}
		if len(f.Statuses) > 0 && !containsPaymentStatus(f.Statuses, p.Status) {
			continue
		}
		if len(f.Types) > 0 && !containsPaymentType(f.Types, p.Type) {
			continue
		}
		if f.Period != nil && (p.BillingPeriod == nil || !p.BillingPeriod.Equal(*f.Period)) {
			continue
		}
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset > 0 {
		if int(f.Offset) >= len(out) {
			return []domain.Payment{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && int(f.Limit) < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsPaymentStatus(list []domain.PaymentStatus, s domain.PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPaymentType(list []domain.PaymentType, t domain.PaymentType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func (r *paymentRepository) UpdateIfStatus(ctx context.Context, p *domain.Payment, expected []domain.PaymentStatus) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.payments[p.ID]
	if !ok || !containsPaymentStatus(expected, current.Status) {
		return false, nil
	}
	current.Status = p.Status
	current.Amount = p.Amount
	current.Method = p.Method
	current.ReceiptRef = p.ReceiptRef
	current.Notes = p.Notes
	current.ReviewedBy = p.ReviewedBy
	current.ReviewedAt = p.ReviewedAt
	current.UpdatedAt = time.Now()
	r.s.payments[p.ID] = clonePayment(current)
	p.UpdatedAt = current.UpdatedAt
	return true, nil
}

func (r *paymentRepository) CreateDueIfAbsent(ctx context.Context, p *domain.Payment) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	if p.BillingPeriod == nil {
		return false, domain.NewError(domain.ErrValidation, "rent due requires a billing period")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.hasDue(dueKey{p.BookingID, *p.BillingPeriod}) {
		return false, nil
	}
	p.Type = domain.PaymentTypeRent
	r.s.insertPayment(p)
	return true, nil
}

func (r *paymentRepository) Delete(ctx context.Context, id int32) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[id]; !ok {
		return notFound("payment", id)
	}
	for _, rr := range r.s.refunds {
		if rr.PaymentID == id {
			return domain.NewError(domain.ErrInvalidTransition, fmt.Sprintf("payment %d is referenced by refund requests", id))
		}
	}
	delete(r.s.payments, id)
	return nil
}

type refundRepository struct{ s *state }

func (r *refundRepository) GetByID(ctx context.Context, id int32) (*domain.RefundRequest, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rr, ok := r.s.refunds[id]
	if !ok {
		return nil, notFound("refund request", id)
	}
	return &rr, nil
}

func (r *refundRepository) ListByBooking(ctx context.Context, bookingID int32) ([]domain.RefundRequest, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.RefundRequest{}
	for _, rr := range r.s.refunds {
		if rr.BookingID == bookingID {
			out = append(out, rr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// completedRefunds must be called with the lock held.
func (s *state) completedRefunds(bookingID int32) money.Money {
	total := money.Zero
	for _, rr := range s.refunds {
		if rr.BookingID == bookingID && rr.Status == domain.RefundStatusCompleted {
			total = total.Add(rr.Amount)
		}
	}
	return total
}

func (r *refundRepository) CreateGuarded(ctx context.Context, rr *domain.RefundRequest, guard repository.RefundGuard) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[rr.BookingID]
	if !ok {
		return notFound("booking", rr.BookingID)
	}
	if guard != nil {
		if err := guard(&b, r.s.completedRefunds(rr.BookingID)); err != nil {
			return err
		}
	}
	rr.ID = r.s.id()
	rr.CreatedAt = time.Now()
	r.s.refunds[rr.ID] = *rr
	return nil
}

func (r *refundRepository) ResolveGuarded(ctx context.Context, rr *domain.RefundRequest, guard repository.RefundGuard) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.refunds[rr.ID]
	if !ok {
		return notFound("refund request", rr.ID)
	}
	if stored.Status != domain.RefundStatusPending {
		return domain.NewError(domain.ErrInvalidTransition,
			fmt.Sprintf("refund request %d is already %s", rr.ID, stored.Status))
	}
	if rr.Status == domain.RefundStatusCompleted && guard != nil {
		b, ok := r.s.bookings[stored.BookingID]
		if !ok {
			return notFound("booking", stored.BookingID)
		}
		if err := guard(&b, r.s.completedRefunds(stored.BookingID)); err != nil {
			return err
		}
	}
	now := time.Now()
	stored.Status = rr.Status
	stored.Notes = rr.Notes
	stored.ResolvedBy = rr.ResolvedBy
	stored.ResolvedAt = &now
	r.s.refunds[rr.ID] = stored
	*rr = stored
	return nil
}

type paymentActionRepository struct{ s *state }

func (r *paymentActionRepository) Create(ctx context.Context, a *domain.PaymentAction) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	a.CreatedAt = time.Now()
	r.s.actions = append(r.s.actions, *a)
	return nil
}

func (r *paymentActionRepository) ListByPayment(ctx context.Context, paymentID int32) ([]domain.PaymentAction, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.PaymentAction{}
	for _, a := range r.s.actions {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out, nil
}

type notificationRepository struct{ s *state }

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n.ID = r.s.id()
	n.CreatedAt = time.Now()
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r *notificationRepository) List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var mine []domain.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if r.s.notifications[i].UserID == userID {
			mine = append(mine, r.s.notifications[i])
		}
	}
	total := int32(len(mine))
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(mine) {
		return []domain.Notification{}, total, nil
	}
	mine = mine[offset:]
	if limit > 0 && int(limit) < len(mine) {
		mine = mine[:limit]
	}
	return mine, total, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int32) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notifications {
		if r.s.notifications[i].ID == id && r.s.notifications[i].UserID == userID {
			r.s.notifications[i].IsRead = true
			return nil
		}
	}
	return notFound("notification", id)
}
