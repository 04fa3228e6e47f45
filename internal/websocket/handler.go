package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/pointledger/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and streams the caller's
// ledger events until the connection closes.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns:     originPatterns,
			InsecureSkipVerify: len(originPatterns) == 0,
		})
		if err != nil {
			logger.Warn("websocket accept", "account_id", ac.AccountID, "error", err)
			return
		}
		defer conn.CloseNow()

		logger.Debug("websocket connected", "account_id", ac.AccountID, "admin", ac.IsAdmin)
		NewClient(hub, conn, ac).Run(r.Context())
	}
}
