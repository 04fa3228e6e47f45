package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/pointledger/internal/auth"
	"github.com/dukerupert/pointledger/internal/model"
	"github.com/dukerupert/pointledger/internal/store"
)

// AccountLookup loads the account a session belongs to.
type AccountLookup func(ctx context.Context, id int64) (*model.Account, error)

// RequireAuth resolves the bearer token and populates AuthContext. The token
// is read from "Authorization: Token <key>" or "Authorization: Bearer <key>";
// WebSocket upgrades may pass it as ?token= instead.
func RequireAuth(sessions *store.SessionStore, lookup AccountLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "authentication credentials were not provided")
				return
			}

			sess, err := sessions.GetByToken(r.Context(), token)
			if err != nil {
				logger.Error("resolve session", "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				return
			}
			if sess == nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			acct, err := lookup(r.Context(), sess.AccountID)
			if err != nil || !acct.Active {
				unauthorized(w, "account is inactive or missing")
				return
			}

			ac := auth.AuthContext{
				AccountID: acct.ID,
				Email:     acct.Email,
				IsAdmin:   acct.IsAdmin,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated account has admin privileges.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			unauthorized(w, "authentication credentials were not provided")
			return
		}
		if !auth.IsAdmin(r.Context()) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin privileges required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the session token from the request, or "".
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok {
			return ""
		}
		if strings.EqualFold(scheme, "Token") || strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Token realm="api"`)
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
