package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/metrics"
	"dorm-ledger-service/internal/money"
	"dorm-ledger-service/internal/service"
)

// Services groups the business services exposed over HTTP.
type Services struct {
	Ledger        service.LedgerService
	Payments      service.PaymentService
	Refunds       service.RefundService
	Dues          service.DuesService
	Delinquency   service.DelinquencyService
	Notifications service.NotificationService
	Receipts      service.ReceiptService

	// Health reports store reachability for /healthz. Nil means always healthy.
	Health func(ctx context.Context) error
}

type Handler struct {
	svc            Services
	validate       *validator.Validate
	maxUploadBytes int64
	now            func() time.Time
}

func NewHandler(svc Services, maxUploadBytes int64) *Handler {
	return &Handler{
		svc:            svc,
		validate:       validator.New(),
		maxUploadBytes: maxUploadBytes,
		now:            time.Now,
	}
}

// NewRouter wires every endpoint. Middleware runs recovery, then metrics,
// then authentication.
func NewRouter(h *Handler, auth *AuthMiddleware, m *metrics.Metrics) *mux.Router {
	r := mux.NewRouter()
	r.Use(Recovery, m.Middleware, auth.Authenticate)

	r.HandleFunc("/healthz", h.Health).Methods("GET")
	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/bookings/{id}/ledger", h.GetLedger).Methods("GET")
	api.HandleFunc("/bookings/{id}/payments", h.ListBookingPayments).Methods("GET")
	api.HandleFunc("/bookings/{id}/refunds", h.ListBookingRefunds).Methods("GET")

	api.HandleFunc("/payments", h.CreatePayment).Methods("POST")
	api.HandleFunc("/payments", h.ListPayments).Methods("GET")
	api.HandleFunc("/payments/{id}", h.GetPayment).Methods("GET")
	api.HandleFunc("/payments/{id}", h.DeletePayment).Methods("DELETE")
	api.HandleFunc("/payments/{id}/proof", h.AttachProof).Methods("POST")
	api.HandleFunc("/payments/{id}/approve", h.ApprovePayment).Methods("POST")
	api.HandleFunc("/payments/{id}/reject", h.RejectPayment).Methods("POST")
	api.HandleFunc("/payments/{id}/cancel", h.CancelPayment).Methods("POST")
	api.HandleFunc("/payments/{id}/override", h.OverridePayment).Methods("POST")
	api.HandleFunc("/payments/{id}/actions", h.ListPaymentActions).Methods("GET")

	api.HandleFunc("/refunds", h.RequestRefund).Methods("POST")
	api.HandleFunc("/refunds/{id}/resolve", h.ResolveRefund).Methods("POST")

	api.HandleFunc("/dues/{period}/generate", h.GenerateDues).Methods("POST")
	api.HandleFunc("/defaulters", h.ListDefaulters).Methods("GET")

	api.HandleFunc("/notifications", h.ListNotifications).Methods("GET")
	api.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods("POST")

	api.HandleFunc("/receipts", h.UploadReceipt).Methods("POST")
	api.HandleFunc("/receipts/{key:.+}", h.DownloadReceipt).Methods("GET")

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.svc.Health != nil {
		if err := h.svc.Health(r.Context()); err != nil {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor is set by AuthMiddleware on every non-public route.
func actor(r *http.Request) domain.Actor {
	a, _ := ActorFromContext(r.Context())
	return a
}

// Ledger

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.svc.Ledger.GetLedgerSnapshot(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) ListBookingPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := paymentFilterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter.BookingID = id
	h.listPayments(w, r, filter)
}

func (h *Handler) ListBookingRefunds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	refunds, err := h.svc.Refunds.ListRefunds(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refunds": nonNil(refunds)})
}

// Payments

type createPaymentRequest struct {
	BookingID     int32                `json:"booking_id" validate:"required,gt=0"`
	Amount        money.Money          `json:"amount"`
	Type          domain.PaymentType   `json:"type" validate:"required,oneof=RENT SECURITY MAINTENANCE LATE_FEE OTHER"`
	Method        domain.PaymentMethod `json:"method" validate:"omitempty,oneof=CASH BANK_TRANSFER EASYPAISA JAZZCASH CHEQUE"`
	BillingPeriod *domain.Period       `json:"billing_period"`
	Notes         string               `json:"notes" validate:"max=2000"`
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.svc.Payments.CreatePayment(r.Context(), actor(r), service.CreatePaymentInput{
		BookingID:     req.BookingID,
		Amount:        req.Amount,
		Type:          req.Type,
		Method:        req.Method,
		BillingPeriod: req.BillingPeriod,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := paymentFilterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bookingID, err := queryInt32(r, "booking_id", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bookingID < 0 {
		writeError(w, r, domain.NewError(domain.ErrValidation, "booking_id must not be negative"))
		return
	}
	filter.BookingID = bookingID
	h.listPayments(w, r, filter)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request, filter domain.PaymentFilter) {
	payments, err := h.svc.Payments.ListPayments(r.Context(), actor(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": nonNil(payments)})
}

func paymentFilterFromQuery(r *http.Request) (domain.PaymentFilter, error) {
	q := r.URL.Query()
	var f domain.PaymentFilter
	for _, s := range splitList(q.Get("status")) {
		st := domain.PaymentStatus(strings.ToUpper(s))
		if !st.IsValid() {
			return f, domain.NewError(domain.ErrValidation, "unknown status "+s)
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, s := range splitList(q.Get("type")) {
		t := domain.PaymentType(strings.ToUpper(s))
		if !t.IsValid() {
			return f, domain.NewError(domain.ErrValidation, "unknown type "+s)
		}
		f.Types = append(f.Types, t)
	}
	if raw := q.Get("period"); raw != "" {
		p, err := domain.ParsePeriod(raw)
		if err != nil {
			return f, err
		}
		f.Period = &p
	}
	limit, err := queryInt32(r, "limit", 0)
	if err != nil {
		return f, err
	}
	offset, err := queryInt32(r, "offset", 0)
	if err != nil {
		return f, err
	}
	if limit < 0 || offset < 0 {
		return f, domain.NewError(domain.ErrValidation, "limit and offset must not be negative")
	}
	f.Limit, f.Offset = limit, offset
	return f, nil
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.Payments.GetPayment(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type attachProofRequest struct {
	ReceiptRef string               `json:"receipt_ref" validate:"required,max=512"`
	Method     domain.PaymentMethod `json:"method" validate:"omitempty,oneof=CASH BANK_TRANSFER EASYPAISA JAZZCASH CHEQUE"`
	Notes      string               `json:"notes" validate:"max=2000"`
}

func (h *Handler) AttachProof(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req attachProofRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.svc.Payments.AttachProof(r.Context(), actor(r), id, req.ReceiptRef, req.Method, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.Payments.Approve)
}

func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.Payments.Cancel)
}

func (h *Handler) simpleTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Actor, int32) (*domain.Payment, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := fn(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rejectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.svc.Payments.Reject(r.Context(), actor(r), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type overrideRequest struct {
	Status domain.PaymentStatus `json:"status" validate:"omitempty,oneof=SUBMITTED_PENDING AWAITING_REVIEW VERIFIED REJECTED CANCELLED"`
	Amount money.Money          `json:"amount" validate:"gte=0"`
	Method domain.PaymentMethod `json:"method" validate:"omitempty,oneof=CASH BANK_TRANSFER EASYPAISA JAZZCASH CHEQUE"`
	Notes  string               `json:"notes" validate:"max=2000"`
}

func (h *Handler) OverridePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req overrideRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.svc.Payments.AdminOverride(r.Context(), actor(r), id, service.OverrideInput{
		Status: req.Status,
		Amount: req.Amount,
		Method: req.Method,
		Notes:  req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Payments.DeletePayment(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPaymentActions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actions, err := h.svc.Payments.ListActions(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": nonNil(actions)})
}

// Refunds

type refundRequest struct {
	BookingID int32       `json:"booking_id" validate:"required,gt=0"`
	PaymentID int32       `json:"payment_id" validate:"required,gt=0"`
	Amount    money.Money `json:"amount"`
	Reason    string      `json:"reason" validate:"max=1000"`
}

func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	rr, err := h.svc.Refunds.RequestRefund(r.Context(), actor(r), service.RefundInput{
		BookingID: req.BookingID,
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rr)
}

type resolveRefundRequest struct {
	Decision domain.RefundStatus `json:"decision" validate:"required,oneof=COMPLETED REJECTED"`
	Notes    string              `json:"notes" validate:"max=1000"`
}

func (h *Handler) ResolveRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req resolveRefundRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	rr, err := h.svc.Refunds.ResolveRefund(r.Context(), actor(r), id, req.Decision, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rr)
}

// Billing

func (h *Handler) GenerateDues(w http.ResponseWriter, r *http.Request) {
	period, err := domain.ParsePeriod(mux.Vars(r)["period"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Dues.GenerateMonthlyDues(r.Context(), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListDefaulters(w http.ResponseWriter, r *http.Request) {
	period := domain.PeriodOf(h.now().UTC())
	if raw := r.URL.Query().Get("period"); raw != "" {
		p, err := domain.ParsePeriod(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		period = p
	}
	dueDay, err := queryInt(r, "due_day", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fee, err := queryInt(r, "late_fee_per_day", -1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Has("late_fee_per_day") && fee < 0 {
		writeError(w, r, domain.NewError(domain.ErrValidation, "late_fee_per_day must not be negative"))
		return
	}

	defaulters, err := h.svc.Delinquency.ComputeDefaulters(r.Context(), period, int(dueDay), money.Money(fee))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "defaulters": nonNil(defaulters)})
}

// Notifications

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt32(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	size, err := queryInt32(r, "page_size", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	notes, total, err := h.svc.Notifications.GetNotifications(r.Context(), actor(r).UserID, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": nonNil(notes), "total": total})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Notifications.MarkAsRead(r.Context(), actor(r).UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
