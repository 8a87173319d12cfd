package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
)

// UploadReceipt accepts a multipart form with a "booking_id" field and a
// "file" part and returns the stored receipt reference.
func (h *Handler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		// allow for multipart framing around the file itself
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+64*1024)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorBody(w, http.StatusRequestEntityTooLarge, errorBody{Code: domain.ErrValidation.Code, Message: "file exceeds maximum size"})
			return
		}
		writeError(w, r, domain.NewError(domain.ErrValidation, "invalid multipart form"))
		return
	}

	bookingID, err := strconv.ParseInt(r.FormValue("booking_id"), 10, 32)
	if err != nil || bookingID <= 0 {
		writeError(w, r, domain.NewError(domain.ErrValidation, "booking_id is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.NewError(domain.ErrValidation, "file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	key, err := h.svc.Receipts.UploadReceipt(r.Context(), actor(r), int32(bookingID), header.Filename, contentType, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"receipt_ref": key})
}

func (h *Handler) DownloadReceipt(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	rc, contentType, err := h.svc.Receipts.OpenReceipt(r.Context(), actor(r), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		logger.WarnContext(r.Context(), "Receipt download interrupted", "key", key, "error", err)
	}
}
