package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/pointledger/internal/auth"
	"github.com/dukerupert/pointledger/internal/ledger"
	"github.com/dukerupert/pointledger/internal/model"
	"github.com/dukerupert/pointledger/internal/store"
	"github.com/dukerupert/pointledger/internal/websocket"
)

// AccountHandler serves registration, sign-in and the caller's profile.
type AccountHandler struct {
	db       *sqlx.DB
	accounts *ledger.AccountStore
	sessions *store.SessionStore
	hub      *websocket.Hub
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAccountHandler(db *sqlx.DB, accounts *ledger.AccountStore, sessions *store.SessionStore, hub *websocket.Hub, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		db:       db,
		accounts: accounts,
		sessions: sessions,
		hub:      hub,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type credentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	Email  string `json:"email"`
	Points int    `json:"points"`
}

func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Struct(req); err != nil {
		h.logger.Warn("signup validation failed", "email", req.Email, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid signup data",
			"fields": fieldErrors(err),
		})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var acct *model.Account
	var sess *model.Session
	err = ledger.InTx(r.Context(), h.db, func(tx *sqlx.Tx) error {
		var err error
		acct, err = h.accounts.Create(r.Context(), tx, ledger.NewAccount{Email: req.Email, PasswordHash: hash})
		if err != nil {
			return err
		}
		sess, err = h.sessions.CreateWith(r.Context(), tx, acct.ID)
		return err
	})
	if errors.Is(err, ledger.ErrConflict) {
		fail(w, r, h.logger, "signup", err, "Email already exists", "email", req.Email)
		return
	}
	if err != nil {
		fail(w, r, h.logger, "signup", err, "", "email", req.Email)
		return
	}

	h.logger.Info("account registered", "account_id", acct.ID, "email", acct.Email)
	writeJSON(w, http.StatusCreated, tokenResponse{Token: sess.Token, Email: acct.Email, Points: acct.Balance})
}

func (h *AccountHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}

	acct, err := h.accounts.GetByEmail(r.Context(), h.db, req.Email)
	if errors.Is(err, ledger.ErrNotFound) {
		h.logger.Warn("signin with unknown email", "email", req.Email)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		fail(w, r, h.logger, "signin", err, "", "email", req.Email)
		return
	}

	if err := auth.CheckPassword(acct.PasswordHash, req.Password); err != nil || !acct.Active {
		h.logger.Warn("signin rejected", "account_id", acct.ID, "active", acct.Active)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	sess, err := h.sessions.Create(r.Context(), acct.ID)
	if err != nil {
		h.logger.Error("create session", "account_id", acct.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("account signed in", "account_id", acct.ID)
	writeJSON(w, http.StatusOK, tokenResponse{Token: sess.Token, Email: acct.Email, Points: acct.Balance})
}

// Signout deletes the session the request was authenticated with.
func (h *AccountHandler) Signout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.sessions.Delete(r.Context(), ac.SessionID); err != nil {
		h.logger.Error("delete session", "account_id", ac.AccountID, "session_id", ac.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if h.hub != nil {
		if n := h.hub.DisconnectSession(ac.SessionID); n > 0 {
			h.logger.Debug("closed sockets for session", "account_id", ac.AccountID, "sockets", n)
		}
	}
	h.logger.Info("account signed out", "account_id", ac.AccountID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed out successfully."})
}

func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.GetByID(r.Context(), h.db, auth.AccountID(r.Context()))
	if err != nil {
		fail(w, r, h.logger, "profile", err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":       acct.Email,
		"points":      acct.Balance,
		"date_joined": acct.CreatedAt,
	})
}

// UpdatePoints overwrites the caller's balance.
func (h *AccountHandler) UpdatePoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points flexInt `json:"points"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	switch {
	case !req.Points.Set:
		writeError(w, http.StatusBadRequest, "Points field is required")
		return
	case !req.Points.Valid:
		writeError(w, http.StatusBadRequest, "Points must be an integer")
		return
	case req.Points.Value < 0:
		writeError(w, http.StatusBadRequest, "Points cannot be negative")
		return
	}

	accountID := auth.AccountID(r.Context())
	var balance int
	err := ledger.InTx(r.Context(), h.db, func(tx *sqlx.Tx) error {
		var err error
		balance, err = h.accounts.SetBalance(r.Context(), tx, accountID, req.Points.Value)
		return err
	})
	if err != nil {
		fail(w, r, h.logger, "update points", err, "")
		return
	}

	h.logger.Info("points updated", "account_id", accountID, "points", balance)
	writeJSON(w, http.StatusOK, map[string]int{"points": balance})
}

// Deactivate disables another account, revokes its sessions and closes its
// sockets. Admin only.
func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Email is required.")
		return
	}

	ctx := r.Context()
	acct, err := h.accounts.GetByEmail(ctx, h.db, req.Email)
	if err != nil {
		fail(w, r, h.logger, "deactivate account", err, "No account found with the given email.", "email", req.Email)
		return
	}
	if acct.ID == auth.AccountID(ctx) {
		writeError(w, http.StatusBadRequest, "You cannot deactivate your own account.")
		return
	}

	if err := h.accounts.SetActive(ctx, h.db, acct.ID, false); err != nil {
		fail(w, r, h.logger, "deactivate account", err, "", "target_id", acct.ID)
		return
	}
	if err := h.sessions.DeleteByAccountID(ctx, acct.ID); err != nil {
		h.logger.Error("revoke sessions", "account_id", auth.AccountID(ctx), "target_id", acct.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	sockets := 0
	if h.hub != nil {
		sockets = h.hub.DisconnectAccount(acct.ID)
	}

	h.logger.Info("account deactivated", "account_id", auth.AccountID(ctx), "target_id", acct.ID, "sockets_closed", sockets)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Account deactivated.", "account_id": acct.ID})
}

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			out[field] = "This field is required."
		case "email":
			out[field] = "Enter a valid email address."
		case "min":
			out[field] = fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
		case "max":
			out[field] = fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		default:
			out[field] = "Invalid value."
		}
	}
	return out
}
