package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
)

type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type emailService struct {
	client    mailSender
	fromEmail string
	fromName  string
	currency  string
}

// NewEmailService sends through SendGrid. With an empty apiKey every send is
// skipped with a debug log, which is how local and test setups run.
func NewEmailService(apiKey, fromEmail, fromName, currency string) EmailService {
	s := &emailService{fromEmail: fromEmail, fromName: fromName, currency: currency}
	if apiKey != "" {
		s.client = sendgrid.NewSendClient(apiKey)
	}
	return s
}

func (s *emailService) send(ctx context.Context, to []string, subject, plainText string) error {
	if s.client == nil || len(to) == 0 {
		logger.Debug("Email delivery skipped", "subject", subject, "recipients", len(to))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	message.Subject = subject
	p := mail.NewPersonalization()
	for _, addr := range to {
		p.AddTos(mail.NewEmail("", addr))
	}
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/plain", plainText))

	logger.ExternalServiceCall("sendgrid", "Send", "subject", subject, "recipients", len(to))
	response, err := s.client.Send(message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "Send", err, "subject", subject)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *emailService) SendPaymentAwaitingReview(ctx context.Context, to []string, booking *domain.Booking, payment *domain.Payment) error {
	subject := fmt.Sprintf("Payment #%d awaiting review", payment.ID)
	body := fmt.Sprintf("A %s payment of %s for booking #%d (room %d) has proof attached and is waiting for review.\n\nReceipt: %s",
		payment.Type, payment.Amount.Format(s.currency), booking.ID, booking.RoomID, payment.ReceiptRef)
	return s.send(ctx, to, subject, body)
}

func (s *emailService) SendDefaulterDigest(ctx context.Context, to []string, period domain.Period, defaulters []domain.Defaulter) error {
	if len(defaulters) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d booking(s) have no verified rent for %s:\n\n", len(defaulters), period)
	for _, d := range defaulters {
		fmt.Fprintf(&b, "- booking #%d room %d resident %d: %d day(s) overdue, late fee %s, total due %s\n",
			d.Booking.ID, d.Booking.RoomID, d.Booking.ResidentID, d.OverdueDays,
			d.LateFee.Format(s.currency), d.TotalDue.Format(s.currency))
	}
	return s.send(ctx, to, fmt.Sprintf("Rent defaulters for %s", period), b.String())
}
