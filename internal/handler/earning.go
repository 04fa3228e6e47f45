package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/pointledger/internal/auth"
	"github.com/dukerupert/pointledger/internal/ledger"
	"github.com/dukerupert/pointledger/internal/websocket"
)

type EarningHandler struct {
	earning *ledger.EarningLedger
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewEarningHandler(el *ledger.EarningLedger, hub *websocket.Hub, logger *slog.Logger) *EarningHandler {
	return &EarningHandler{earning: el, hub: hub, logger: logger}
}

func (h *EarningHandler) CompletedForms(w http.ResponseWriter, r *http.Request) {
	titles, err := h.earning.ListSubmittedTitles(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, "list completed forms", err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"completed_forms": titles})
}

func (h *EarningHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FormTitle string `json:"form_title"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	accountID := auth.AccountID(r.Context())
	res, err := h.earning.MarkSubmitted(r.Context(), accountID, req.FormTitle)
	switch {
	case errors.Is(err, ledger.ErrAlreadySubmitted):
		h.logger.Info("form already submitted", "account_id", accountID, "form_title", req.FormTitle)
		writeJSON(w, http.StatusOK, map[string]any{
			"message":           "This form has already been submitted.",
			"already_submitted": true,
		})
		return
	case errors.Is(err, ledger.ErrValidation):
		fail(w, r, h.logger, "mark form completed", err, "Form title is required")
		return
	case err != nil:
		fail(w, r, h.logger, "mark form completed", err, "", "form_title", req.FormTitle)
		return
	}

	publish(h.hub, websocket.NewMessage(websocket.EntityEarning, websocket.ActionSubmitted, accountID, res.Record.ID,
		map[string]any{
			"form_title":    res.Record.ActivityName,
			"points_earned": res.Record.PointsAwarded,
			"points":        res.Balance,
		}))

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Form submitted successfully!",
		"points":        res.Balance,
		"points_earned": res.Record.PointsAwarded,
	})
}

func (h *EarningHandler) CountSubmitted(w http.ResponseWriter, r *http.Request) {
	n, err := h.earning.SubmittedCount(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, "count forms submitted", err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"forms_submitted": n})
}
