package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/metrics"
	"dorm-ledger-service/internal/repository/memory"
	"dorm-ledger-service/internal/security"
	"dorm-ledger-service/internal/service"
	"dorm-ledger-service/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	t      *testing.T
	router http.Handler
	tokens security.TokenManager
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memory.NewStore()
	st.PutBooking(domain.Booking{
		ID: 1, ResidentID: 7, RoomID: 3, MonthlyRent: 10000, SecurityDeposit: 20000, TotalAmount: 40000,
		Status: domain.BookingStatusCheckedIn, CheckIn: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	files, err := storage.NewLocalReceiptStorage(storage.Config{
		UploadDir: t.TempDir(), MaxFileSize: 1024, AllowedTypes: []string{"image/png"},
	})
	require.NoError(t, err)

	m := metrics.New()
	notes := service.NewNotificationService(st.NotificationRepository, nil, []int32{50}, nil)
	svc := Services{
		Ledger:        service.NewLedgerService(st.BookingRepository, st.PaymentRepository, st.RefundRepository),
		Payments:      service.NewPaymentService(st.BookingRepository, st.PaymentRepository, st.PaymentActionRepository, notes, m),
		Refunds:       service.NewRefundService(st.BookingRepository, st.PaymentRepository, st.RefundRepository, notes, m),
		Dues:          service.NewDuesService(st.BookingRepository, st.PaymentRepository, m),
		Delinquency:   service.NewDelinquencyService(st.BookingRepository, st.PaymentRepository, 5, 0),
		Notifications: notes,
		Receipts:      service.NewReceiptService(st.BookingRepository, files),
	}
	tm := security.NewTokenManager(testSecret, time.Hour)
	return &testServer{
		t:      t,
		router: NewRouter(NewHandler(svc, 1024), NewAuthMiddleware(tm), m),
		tokens: tm,
		store:  st,
	}
}

func (s *testServer) token(userID int32, role domain.Role) string {
	tok, err := s.tokens.GenerateAccessToken(userID, role)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[errorEnvelope](t, rec).Error.Code
}

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	resident := s.token(7, domain.RoleResident)
	warden := s.token(50, domain.RoleWarden)
	admin := s.token(60, domain.RoleAdmin)

	rec := s.do("POST", "/api/v1/payments", resident, map[string]any{
		"booking_id": 1, "amount": 15000, "type": "OTHER",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[domain.Payment](t, rec)
	assert.Equal(t, domain.PaymentStatusSubmittedPending, p.Status)
	path := "/api/v1/payments/" + itoa(p.ID)

	rec = s.do("POST", path+"/proof", resident, map[string]any{"receipt_ref": "1/r.png", "method": "CASH"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.PaymentStatusAwaitingReview, decode[domain.Payment](t, rec).Status)

	t.Run("Resident cannot approve", func(t *testing.T) {
		rec := s.do("POST", path+"/approve", resident, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
	})

	rec = s.do("POST", path+"/approve", warden, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.PaymentStatusVerified, decode[domain.Payment](t, rec).Status)

	t.Run("Second review conflicts", func(t *testing.T) {
		rec := s.do("POST", path+"/reject", warden, map[string]any{"reason": "late"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, domain.ErrInvalidTransition.Code, errorCode(t, rec))
	})

	t.Run("Ledger reflects the verification", func(t *testing.T) {
		rec := s.do("GET", "/api/v1/bookings/1/ledger", resident, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		snap := decode[domain.LedgerSnapshot](t, rec)
		assert.EqualValues(t, 60000, snap.TotalDue)
		assert.EqualValues(t, 15000, snap.VerifiedPaid)
		assert.EqualValues(t, 45000, snap.OutstandingBalance)
	})

	t.Run("Audit trail", func(t *testing.T) {
		rec := s.do("GET", path+"/actions", warden, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string][]domain.PaymentAction](t, rec)
		assert.Len(t, body["actions"], 3)
	})

	t.Run("Listing by booking", func(t *testing.T) {
		rec := s.do("GET", "/api/v1/bookings/1/payments?status=verified", resident, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string][]domain.Payment](t, rec)
		assert.Len(t, body["payments"], 1)

		rec = s.do("GET", "/api/v1/payments?status=BOGUS", warden, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Delete is admin only", func(t *testing.T) {
		rec := s.do("DELETE", path, warden, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = s.do("DELETE", path, admin, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = s.do("GET", path, admin, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	resident := s.token(7, domain.RoleResident)

	t.Run("Missing type", func(t *testing.T) {
		rec := s.do("POST", "/api/v1/payments", resident, map[string]any{"booking_id": 1, "amount": 100})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decode[errorEnvelope](t, rec)
		assert.Equal(t, domain.ErrValidation.Code, env.Error.Code)
		assert.Contains(t, env.Error.Details, "Type")
	})

	t.Run("Non-positive amount", func(t *testing.T) {
		rec := s.do("POST", "/api/v1/payments", resident, map[string]any{"booking_id": 1, "amount": 0, "type": "OTHER"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, domain.ErrInvalidAmount.Code, errorCode(t, rec))
	})

	t.Run("Unknown field", func(t *testing.T) {
		rec := s.do("POST", "/api/v1/payments", resident, map[string]any{"booking_id": 1, "amount": 1, "type": "OTHER", "extra": true})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Bad path id", func(t *testing.T) {
		rec := s.do("GET", "/api/v1/payments/abc", resident, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Other resident's booking", func(t *testing.T) {
		rec := s.do("GET", "/api/v1/bookings/1/ledger", s.token(8, domain.RoleResident), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do("GET", "/api/v1/bookings/1/ledger", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(t, rec))

	rec = s.do("GET", "/api/v1/bookings/1/ledger", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do("GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dorm_ledger_http_requests_total")
}

func TestRefundsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	resident := s.token(7, domain.RoleResident)
	warden := s.token(50, domain.RoleWarden)

	rec := s.do("POST", "/api/v1/payments", resident, map[string]any{"booking_id": 1, "amount": 20000, "type": "SECURITY"})
	require.Equal(t, http.StatusCreated, rec.Code)
	deposit := decode[domain.Payment](t, rec)
	path := "/api/v1/payments/" + itoa(deposit.ID)
	require.Equal(t, http.StatusOK, s.do("POST", path+"/proof", resident, map[string]any{"receipt_ref": "x"}).Code)
	require.Equal(t, http.StatusOK, s.do("POST", path+"/approve", warden, nil).Code)

	rec = s.do("POST", "/api/v1/refunds", resident, map[string]any{
		"booking_id": 1, "payment_id": deposit.ID, "amount": 25000, "reason": "checkout",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, domain.ErrInsufficientDeposit.Code, errorCode(t, rec))

	rec = s.do("POST", "/api/v1/refunds", resident, map[string]any{
		"booking_id": 1, "payment_id": deposit.ID, "amount": 5000, "reason": "checkout",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	refund := decode[domain.RefundRequest](t, rec)

	rec = s.do("POST", "/api/v1/refunds/"+itoa(refund.ID)+"/resolve", warden, map[string]any{"decision": "PENDING"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("POST", "/api/v1/refunds/"+itoa(refund.ID)+"/resolve", warden, map[string]any{"decision": "COMPLETED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.RefundStatusCompleted, decode[domain.RefundRequest](t, rec).Status)

	rec = s.do("GET", "/api/v1/bookings/1/refunds", resident, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]domain.RefundRequest](t, rec)["refunds"], 1)

	t.Run("Resident is notified", func(t *testing.T) {
		rec := s.do("GET", "/api/v1/notifications", resident, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Notifications []domain.Notification `json:"notifications"`
			Total         int32                 `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotEmpty(t, body.Notifications)

		rec = s.do("POST", "/api/v1/notifications/"+itoa(body.Notifications[0].ID)+"/read", resident, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestQueryParameterBounds(t *testing.T) {
	s := newTestServer(t)
	resident := s.token(7, domain.RoleResident)
	warden := s.token(50, domain.RoleWarden)

	rec := s.do("POST", "/api/v1/payments", resident, map[string]any{"booking_id": 1, "amount": 500, "type": "OTHER"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"Status list with blanks", "/api/v1/payments?booking_id=1&status=%20submitted_pending%20,,awaiting_review", resident, http.StatusOK},
		{"Booking id beyond int32", "/api/v1/payments?booking_id=4294967297", resident, http.StatusBadRequest},
		{"Negative booking id", "/api/v1/payments?booking_id=-1", resident, http.StatusBadRequest},
		{"Limit beyond int32", "/api/v1/payments?limit=2147483648", resident, http.StatusBadRequest},
		{"Offset beyond int32", "/api/v1/payments?limit=10&offset=9999999999", resident, http.StatusBadRequest},
		{"Huge notification page", "/api/v1/notifications?page=2147483647", resident, http.StatusBadRequest},
		{"Huge notification page size", "/api/v1/notifications?page_size=2147483647", resident, http.StatusOK},
		{"Negative late fee", "/api/v1/defaulters?period=2024-03&late_fee_per_day=-5", warden, http.StatusBadRequest},
		{"Zero late fee", "/api/v1/defaulters?period=2024-03&late_fee_per_day=0", warden, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do("GET", tt.path, tt.token, nil)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusBadRequest {
				assert.Equal(t, domain.ErrValidation.Code, errorCode(t, rec))
			}
		})
	}

	t.Run("Status filter applies", func(t *testing.T) {
		rec := s.do("GET", "/api/v1/payments?booking_id=1&status=submitted_pending,%20verified", resident, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[map[string][]domain.Payment](t, rec)["payments"], 1)

		rec = s.do("GET", "/api/v1/payments?booking_id=1&status=verified", resident, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[map[string][]domain.Payment](t, rec)["payments"])
	})
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList(" , ,"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,,b "))
}

func TestDeleteReferencedPayment(t *testing.T) {
	s := newTestServer(t)
	resident := s.token(7, domain.RoleResident)
	warden := s.token(50, domain.RoleWarden)
	admin := s.token(1, domain.RoleAdmin)

	rec := s.do("POST", "/api/v1/payments", resident, map[string]any{"booking_id": 1, "amount": 20000, "type": "SECURITY"})
	require.Equal(t, http.StatusCreated, rec.Code)
	deposit := decode[domain.Payment](t, rec)
	path := "/api/v1/payments/" + itoa(deposit.ID)
	require.Equal(t, http.StatusOK, s.do("POST", path+"/proof", resident, map[string]any{"receipt_ref": "x"}).Code)
	require.Equal(t, http.StatusOK, s.do("POST", path+"/approve", warden, nil).Code)
	rec = s.do("POST", "/api/v1/refunds", resident, map[string]any{
		"booking_id": 1, "payment_id": deposit.ID, "amount": 5000, "reason": "checkout",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do("DELETE", path, admin, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, domain.ErrInvalidTransition.Code, errorCode(t, rec))

	rec = s.do("GET", path, resident, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBillingOverHTTP(t *testing.T) {
	s := newTestServer(t)
	warden := s.token(50, domain.RoleWarden)

	rec := s.do("POST", "/api/v1/dues/2024-03/generate", s.token(7, domain.RoleResident), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do("POST", "/api/v1/dues/2024-03/generate", warden, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[domain.DuesResult](t, rec)
	assert.Equal(t, 1, res.Created)

	rec = s.do("POST", "/api/v1/dues/2024-03/generate", warden, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[domain.DuesResult](t, rec).Skipped)

	rec = s.do("POST", "/api/v1/dues/March/generate", warden, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("GET", "/api/v1/defaulters?period=2024-03&due_day=5&late_fee_per_day=100", warden, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Period     string             `json:"period"`
		Defaulters []domain.Defaulter `json:"defaulters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-03", body.Period)
	require.Len(t, body.Defaulters, 1)
	assert.Equal(t, 26, body.Defaulters[0].OverdueDays)
	assert.EqualValues(t, 2600, body.Defaulters[0].LateFee)
}

func TestReceiptsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	resident := s.token(7, domain.RoleResident)

	upload := func(contentType string, content []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("booking_id", "1"))
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="slip.png"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest("POST", "/api/v1/receipts", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+resident)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("image/png", []byte("png-data"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	key := decode[map[string]string](t, rec)["receipt_ref"]
	require.True(t, strings.HasPrefix(key, "1/"))

	rec = s.do("GET", "/api/v1/receipts/"+key, resident, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-data", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = s.do("GET", "/api/v1/receipts/"+key, s.token(8, domain.RoleResident), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = upload("application/zip", []byte("zip"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload("image/png", bytes.Repeat([]byte("x"), 2048))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingLedger struct{}

func (failingLedger) GetLedgerSnapshot(context.Context, domain.Actor, int32) (*domain.LedgerSnapshot, error) {
	return nil, domain.ErrStoreUnavailable
}

type panickingLedger struct{}

func (panickingLedger) GetLedgerSnapshot(context.Context, domain.Actor, int32) (*domain.LedgerSnapshot, error) {
	panic("boom")
}

func TestErrorMiddleware(t *testing.T) {
	tm := security.NewTokenManager(testSecret, time.Hour)
	tok, err := tm.GenerateAccessToken(50, domain.RoleWarden)
	require.NoError(t, err)

	serve := func(ledger service.LedgerService) *httptest.ResponseRecorder {
		router := NewRouter(NewHandler(Services{Ledger: ledger}, 0), NewAuthMiddleware(tm), nil)
		req := httptest.NewRequest("GET", "/api/v1/bookings/1/ledger", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("Store unavailable", func(t *testing.T) {
		rec := serve(failingLedger{})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Equal(t, domain.ErrStoreUnavailable.Code, errorCode(t, rec))
	})

	t.Run("Panic", func(t *testing.T) {
		rec := serve(panickingLedger{})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "INTERNAL", errorCode(t, rec))
	})
}

func itoa(id int32) string {
	return strconv.Itoa(int(id))
}
