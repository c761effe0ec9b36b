package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/auth"
	"github.com/dukerupert/frostbox/internal/store"
)

// Identify trusts the authenticating proxy in front of the service: the
// signed-in address arrives in emailHeader and its user row is created on
// first sight. A household named in householdHeader must be one the user
// belongs to; otherwise the request is refused.
//
// Requests without the e-mail header pass through unauthenticated.
func Identify(users *store.UserStore, households *store.HouseholdStore, emailHeader, householdHeader string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			address := strings.TrimSpace(r.Header.Get(emailHeader))
			if address == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.Ensure(r.Context(), address)
			if err != nil {
				logger.Error("ensure user", "error", err)
				writeError(w, apperr.Normalize(err))
				return
			}
			ac := auth.AuthContext{User: user}

			if householdID := strings.TrimSpace(r.Header.Get(householdHeader)); householdID != "" {
				h, err := households.Get(r.Context(), user.ID, householdID)
				if errors.Is(err, apperr.ErrNotFound) {
					writeError(w, apperr.Forbidden("you are not a member of this household"))
					return
				}
				if err != nil {
					logger.Error("verify household membership", "household_id", householdID, "error", err)
					writeError(w, apperr.Normalize(err))
					return
				}
				ac.Household = h
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireUser answers 401 for requests Identify could not attach a user to.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.User(r.Context()) == nil {
			writeError(w, apperr.NotAuthenticated())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	switch apperr.KindOf(err) {
	case apperr.KindNotAuthenticated:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": apperr.Message(err),
		"kind":  string(apperr.KindOf(err)),
	})
}
