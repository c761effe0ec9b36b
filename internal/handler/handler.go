// Package handler is the JSON HTTP surface. Each request gets its own scope
// session built from the identity the middleware attached, and its own
// short-lived services on top of the shared stores.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/auth"
	"github.com/dukerupert/frostbox/internal/identity"
	"github.com/dukerupert/frostbox/internal/scope"
	ws "github.com/dukerupert/frostbox/internal/websocket"
)

// Broadcaster fans change hints out to the devices of one scope.
type Broadcaster interface {
	Broadcast(scopeKey string, msg ws.Message)
	Disconnect(scopeKey, userID string) int
}

type errorBody struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Position int    `json:"position,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotAuthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindPositionConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError maps err onto a status and the {"error","kind"} body. Transport
// failures are logged; their cause never reaches the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	err = apperr.Normalize(err)
	kind := apperr.KindOf(err)
	body := errorBody{Error: apperr.Message(err), Kind: string(kind)}

	var e *apperr.Error
	if errors.As(err, &e) && kind == apperr.KindPositionConflict {
		body.Position = e.Position
	}
	if kind == apperr.KindTransport {
		logger.Error("request failed", "error", err, "cause", errors.Unwrap(err))
	}
	writeJSON(w, statusFor(kind), body)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid JSON")
	}
	return nil
}

// openSession builds the scope session of one request. The caller closes it.
func openSession(r *http.Request, logger *slog.Logger) (*scope.Session, error) {
	ac, ok := auth.FromContext(r.Context())
	if !ok || ac.User == nil {
		return nil, apperr.NotAuthenticated()
	}
	session := scope.NewSession(identity.NewLocal(ac.User), logger)
	if ac.Household != nil {
		if err := session.Switch(r.Context(), ac.Household); err != nil {
			session.Close()
			return nil, fmt.Errorf("select household: %w", err)
		}
	}
	return session, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be a number", name)
	}
	return n, nil
}
