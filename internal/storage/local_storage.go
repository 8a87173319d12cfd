package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"dorm-ledger-service/internal/logger"
)

var keyPattern = regexp.MustCompile(`^[0-9]+/[0-9a-f-]{36}\.[a-z]+$`)

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// LocalReceiptStorage stores receipts on the local filesystem under
// <upload_dir>/receipts/<booking_id>/<uuid><ext>.
type LocalReceiptStorage struct {
	cfg  Config
	root string
}

func NewLocalReceiptStorage(cfg Config) (*LocalReceiptStorage, error) {
	root := filepath.Join(cfg.UploadDir, "receipts")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create receipts directory: %w", err)
	}
	return &LocalReceiptStorage{cfg: cfg, root: root}, nil
}

// BookingIDFromKey returns the booking a receipt key belongs to.
func BookingIDFromKey(key string) (int32, error) {
	if !keyPattern.MatchString(key) {
		return 0, ErrInvalidKey
	}
	id, err := strconv.ParseInt(key[:strings.IndexByte(key, '/')], 10, 32)
	if err != nil {
		return 0, ErrInvalidKey
	}
	return int32(id), nil
}

func (s *LocalReceiptStorage) Save(ctx context.Context, bookingID int32, filename, contentType string, r io.Reader) (string, error) {
	if !s.cfg.allows(contentType) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	ext, ok := extensions[contentType]
	if !ok {
		ext = strings.ToLower(filepath.Ext(filename))
		if ext == "" || len(ext) > 6 {
			ext = ".bin"
		}
	}
	key := fmt.Sprintf("%d/%s%s", bookingID, uuid.NewString(), ext)
	fullPath := filepath.Join(s.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	src := r
	if s.cfg.MaxFileSize > 0 {
		src = io.LimitReader(r, s.cfg.MaxFileSize+1)
	}
	written, err := io.Copy(file, src)
	closeErr := file.Close()
	if err == nil && s.cfg.MaxFileSize > 0 && written > s.cfg.MaxFileSize {
		err = ErrFileTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	logger.Debug("Receipt stored", "key", key, "size", written, "original_name", filename)
	return key, nil
}

func (s *LocalReceiptStorage) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !keyPattern.MatchString(key) {
		return nil, "", ErrInvalidKey
	}
	file, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrFileNotFound
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	return file, contentTypeFor(key), nil
}

func (s *LocalReceiptStorage) Exists(ctx context.Context, key string) (bool, int64, error) {
	if !keyPattern.MatchString(key) {
		return false, 0, ErrInvalidKey
	}
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, info.Size(), nil
}

func contentTypeFor(key string) string {
	ext := filepath.Ext(key)
	for ct, e := range extensions {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}
