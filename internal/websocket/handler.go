package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/frostbox/internal/auth"
)

// HandleWebSocket upgrades the request and subscribes it to the scope the
// identity middleware resolved. Unauthenticated requests get 401.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := auth.ScopeKey(r.Context())
		if key == "" {
			http.Error(w, "not signed in", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		NewClient(hub, conn, key, auth.UserID(r.Context())).Run(r.Context())
	}
}
