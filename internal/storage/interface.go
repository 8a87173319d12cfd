package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds maximum size")
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidKey      = errors.New("invalid storage key")
)

// ReceiptStorage keeps proof-of-payment files. The returned reference is
// opaque to the ledger; it is stored on the payment as its receipt ref.
type ReceiptStorage interface {
	// Save stores the content under a new key scoped to the booking and returns the key.
	Save(ctx context.Context, bookingID int32, filename, contentType string, r io.Reader) (string, error)

	// Open returns the file and its content type.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Exists checks if a file exists and returns its size
	Exists(ctx context.Context, key string) (bool, int64, error)
}
