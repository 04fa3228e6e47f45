package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/pointledger/internal/auth"
	"github.com/dukerupert/pointledger/internal/blob"
	"github.com/dukerupert/pointledger/internal/store"
)

const maxUploadBytes = 10 << 20

// AchievementHandler accepts evidence images and records where they are stored.
type AchievementHandler struct {
	blobs        blob.Store
	achievements *store.AchievementStore
	logger       *slog.Logger
}

func NewAchievementHandler(bs blob.Store, as *store.AchievementStore, logger *slog.Logger) *AchievementHandler {
	return &AchievementHandler{blobs: bs, achievements: as, logger: logger}
}

func (h *AchievementHandler) Upload(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image file is too large.")
			return
		}
		h.logger.Warn("achievement upload without image", "account_id", accountID, "error", err)
		writeError(w, http.StatusBadRequest, "Image file is required.")
		return
	}
	defer file.Close()

	key := blob.Key(accountID, header.Filename)
	url, err := h.blobs.Put(r.Context(), key, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		fail(w, r, h.logger, "upload achievement image", err, "", "key", key)
		return
	}

	img, err := h.achievements.Create(r.Context(), accountID, url)
	if err != nil {
		fail(w, r, h.logger, "record achievement image", err, "", "url", url)
		return
	}

	h.logger.Info("achievement image uploaded", "account_id", accountID, "image_id", img.ID, "url", url)
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (h *AchievementHandler) List(w http.ResponseWriter, r *http.Request) {
	imgs, err := h.achievements.ListByAccount(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, "list achievement images", err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": imgs})
}
