package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/pointledger/internal/auth"
	"github.com/dukerupert/pointledger/internal/ledger"
	"github.com/dukerupert/pointledger/internal/model"
	"github.com/dukerupert/pointledger/internal/websocket"
)

const maxBulkApprove = 100

type RedemptionHandler struct {
	workflow *ledger.RedemptionWorkflow
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewRedemptionHandler(rw *ledger.RedemptionWorkflow, hub *websocket.Hub, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{workflow: rw, hub: hub, logger: logger}
}

type redemptionView struct {
	model.RedemptionRequest
	Status string `json:"status"`
}

func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RewardName   string  `json:"reward_name"`
		RewardPoints flexInt `json:"reward_points"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RewardName) == "" || !req.RewardPoints.Set {
		writeError(w, http.StatusBadRequest, "Reward name and reward points are required.")
		return
	}
	if !req.RewardPoints.Valid {
		writeError(w, http.StatusBadRequest, "Reward points must be an integer.")
		return
	}

	accountID := auth.AccountID(r.Context())
	rr, err := h.workflow.Request(r.Context(), accountID, req.RewardName, req.RewardPoints.Value)
	if err != nil {
		fail(w, r, h.logger, "redeem reward", err, "", "reward_name", req.RewardName)
		return
	}

	publish(h.hub, websocket.NewMessage(websocket.EntityRedemption, websocket.ActionRequested, accountID, rr.ID,
		map[string]any{"reward_name": rr.RewardName, "reward_points": rr.Cost}))

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":               "Reward redemption request submitted successfully. Await admin approval.",
		"redemption_request_id": rr.ID,
	})
}

func (h *RedemptionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID flexInt `json:"redemption_request_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.ID.Set {
		writeError(w, http.StatusBadRequest, "Redemption request ID is required.")
		return
	}
	if !req.ID.Valid || req.ID.Value <= 0 {
		writeError(w, http.StatusBadRequest, "Redemption request ID must be a positive integer.")
		return
	}

	id := int64(req.ID.Value)
	res, err := h.workflow.Approve(r.Context(), id, auth.AccountID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, "approve redemption", err, approveMessage(err), "redemption_id", id)
		return
	}
	h.publishApproved(res)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Reward redemption approved and points deducted successfully.",
		"user_points":   res.Balance,
		"redemption_id": res.Request.ID,
	})
}

type approveResult struct {
	RedemptionID int64  `json:"redemption_id"`
	Approved     bool   `json:"approved"`
	UserPoints   *int   `json:"user_points,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ApproveMany approves each listed request independently and reports per-id results.
func (h *RedemptionHandler) ApproveMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []flexInt `json:"redemption_request_ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "Redemption request IDs are required.")
		return
	}
	if len(req.IDs) > maxBulkApprove {
		writeError(w, http.StatusBadRequest, "Too many redemption request IDs.")
		return
	}
	ids := make([]int64, 0, len(req.IDs))
	for _, f := range req.IDs {
		if !f.Valid || f.Value <= 0 {
			writeError(w, http.StatusBadRequest, "Redemption request IDs must be positive integers.")
			return
		}
		ids = append(ids, int64(f.Value))
	}

	approverID := auth.AccountID(r.Context())
	outcomes := h.workflow.ApproveMany(r.Context(), ids, approverID)

	results := make([]approveResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			level := slog.LevelWarn
			if !ledger.IsBusiness(o.Err) {
				level = slog.LevelError
			}
			h.logger.Log(r.Context(), level, "bulk approval item failed",
				"account_id", approverID, "op", "approve redemptions", "redemption_id", o.ID, "error", o.Err)
			results = append(results, approveResult{RedemptionID: o.ID, Error: approveMessage(o.Err)})
			continue
		}
		h.publishApproved(o.Result)
		bal := o.Result.Balance
		results = append(results, approveResult{RedemptionID: o.ID, Approved: true, UserPoints: &bal})
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *RedemptionHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	reqs, err := h.workflow.List(r.Context(), ac.AccountID, ac.IsAdmin)
	if err != nil {
		fail(w, r, h.logger, "list redemptions", err, "")
		return
	}

	views := make([]redemptionView, 0, len(reqs))
	for _, rr := range reqs {
		views = append(views, redemptionView{RedemptionRequest: rr, Status: rr.Status()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": views})
}

func (h *RedemptionHandler) publishApproved(res *ledger.ApproveResult) {
	publish(h.hub, websocket.NewMessage(websocket.EntityRedemption, websocket.ActionApproved,
		res.Request.AccountID, res.Request.ID,
		map[string]any{
			"reward_name":   res.Request.RewardName,
			"reward_points": res.Request.Cost,
			"points":        res.Balance,
		}))
}

func approveMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return "No pending redemption request found with the given ID."
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "Insufficient points to approve this redemption."
	case errors.Is(err, ledger.ErrValidation):
		return "Reward points must be a positive integer."
	case ledger.IsBusiness(err):
		return err.Error()
	default:
		return "internal error"
	}
}
