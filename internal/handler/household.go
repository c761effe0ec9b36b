package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/auth"
	"github.com/dukerupert/frostbox/internal/household"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
	"github.com/dukerupert/frostbox/internal/store"
	ws "github.com/dukerupert/frostbox/internal/websocket"
)

type HouseholdHandler struct {
	households *store.HouseholdStore
	hub        Broadcaster
	logger     *slog.Logger
}

func NewHouseholdHandler(households *store.HouseholdStore, hub Broadcaster, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{households: households, hub: hub, logger: logger}
}

type householdRequest struct {
	Name string `json:"name"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *HouseholdHandler) directory(w http.ResponseWriter, r *http.Request, fn func(*household.Directory) error) {
	session, err := openSession(r, h.logger)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer session.Close()
	dir := household.New(session, h.households, h.logger)
	defer dir.Close()

	if err := fn(dir); err != nil {
		writeError(w, h.logger, err)
	}
}

// notify tells every member's device that the household changed.
func (h *HouseholdHandler) notify(householdID, action string) {
	key := scope.Filter{HouseholdID: householdID}.Key()
	h.hub.Broadcast(key, ws.NewMessage("household", action, householdID))
}

// disconnect closes userID's live connections to a household they no longer
// belong to.
func (h *HouseholdHandler) disconnect(householdID, userID string) {
	h.hub.Disconnect(scope.Filter{HouseholdID: householdID}.Key(), userID)
}

// memberOf loads memberID and checks it belongs to householdID.
func memberOf(r *http.Request, dir *household.Directory, householdID, memberID string) (*model.HouseholdMember, error) {
	members, err := dir.ListMembers(r.Context(), householdID)
	if err != nil {
		return nil, err
	}
	for i := range members {
		if members[i].ID == memberID {
			return &members[i], nil
		}
	}
	return nil, apperr.NotFound("member not found")
}

func (h *HouseholdHandler) List(w http.ResponseWriter, r *http.Request) {
	h.directory(w, r, func(dir *household.Directory) error {
		list, err := dir.List(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, list)
		return nil
	})
}

func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.directory(w, r, func(dir *household.Directory) error {
		created, err := dir.Create(r.Context(), req.Name)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, created)
		return nil
	})
}

func (h *HouseholdHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	h.directory(w, r, func(dir *household.Directory) error {
		renamed, err := dir.Rename(r.Context(), id, req.Name)
		if err != nil {
			return err
		}
		h.notify(id, "renamed")
		writeJSON(w, http.StatusOK, renamed)
		return nil
	})
}

func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.directory(w, r, func(dir *household.Directory) error {
		if err := dir.Delete(r.Context(), id); err != nil {
			return err
		}
		h.notify(id, "deleted")
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (h *HouseholdHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.directory(w, r, func(dir *household.Directory) error {
		if err := dir.Leave(r.Context(), id); err != nil {
			return err
		}
		h.notify(id, "member_left")
		h.disconnect(id, auth.UserID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (h *HouseholdHandler) Members(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.directory(w, r, func(dir *household.Directory) error {
		members, err := dir.ListMembers(r.Context(), id)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, members)
		return nil
	})
}

func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	memberID := chi.URLParam(r, "memberID")
	h.directory(w, r, func(dir *household.Directory) error {
		m, err := memberOf(r, dir, id, memberID)
		if err != nil {
			return err
		}
		if err := dir.RemoveMember(r.Context(), memberID); err != nil {
			return err
		}
		h.notify(id, "member_removed")
		h.disconnect(id, m.UserID)
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (h *HouseholdHandler) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	memberID := chi.URLParam(r, "memberID")
	h.directory(w, r, func(dir *household.Directory) error {
		if _, err := memberOf(r, dir, id, memberID); err != nil {
			return err
		}
		m, err := dir.SetMemberRole(r.Context(), memberID, req.Role)
		if err != nil {
			return err
		}
		h.notify(id, "member_updated")
		writeJSON(w, http.StatusOK, m)
		return nil
	})
}
