package service

import (
	"context"
	"errors"
	"io"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
	"dorm-ledger-service/internal/repository"
	"dorm-ledger-service/internal/storage"
)

type receiptService struct {
	bookingRepo repository.BookingRepository
	store       storage.ReceiptStorage
}

func NewReceiptService(bookingRepo repository.BookingRepository, store storage.ReceiptStorage) ReceiptService {
	return &receiptService{bookingRepo: bookingRepo, store: store}
}

func (s *receiptService) UploadReceipt(ctx context.Context, actor domain.Actor, bookingID int32, filename, contentType string, r io.Reader) (string, error) {
	logger.EnterMethod("receiptService.UploadReceipt", "bookingID", bookingID, "contentType", contentType)

	if _, err := loadAccessibleBooking(ctx, s.bookingRepo, actor, bookingID); err != nil {
		logger.ExitMethodWithError("receiptService.UploadReceipt", err, "bookingID", bookingID)
		return "", err
	}

	logger.ExternalServiceCall("ReceiptStorage", "Save", "bookingID", bookingID)
	key, err := s.store.Save(ctx, bookingID, filename, contentType, r)
	logger.ExternalServiceResult("ReceiptStorage", "Save", err, "key", key)
	if err != nil {
		err = mapStorageError(err)
		logger.ExitMethodWithError("receiptService.UploadReceipt", err, "bookingID", bookingID)
		return "", err
	}

	logger.ExitMethod("receiptService.UploadReceipt", "key", key)
	return key, nil
}

func (s *receiptService) OpenReceipt(ctx context.Context, actor domain.Actor, key string) (io.ReadCloser, string, error) {
	bookingID, err := storage.BookingIDFromKey(key)
	if err != nil {
		return nil, "", mapStorageError(err)
	}
	if _, err := loadAccessibleBooking(ctx, s.bookingRepo, actor, bookingID); err != nil {
		return nil, "", err
	}
	rc, contentType, err := s.store.Open(ctx, key)
	if err != nil {
		return nil, "", mapStorageError(err)
	}
	return rc, contentType, nil
}

func mapStorageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrFileNotFound):
		return domain.NewError(domain.ErrNotFound, "receipt not found")
	case errors.Is(err, storage.ErrFileTooLarge),
		errors.Is(err, storage.ErrUnsupportedType),
		errors.Is(err, storage.ErrInvalidKey):
		return domain.NewError(domain.ErrValidation, err.Error())
	default:
		return err
	}
}
