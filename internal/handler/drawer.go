package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/frostbox/internal/auth"
	"github.com/dukerupert/frostbox/internal/drawer"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/store"
	ws "github.com/dukerupert/frostbox/internal/websocket"
)

type DrawerHandler struct {
	drawers *store.DrawerStore
	hub     Broadcaster
	logger  *slog.Logger
}

func NewDrawerHandler(drawers *store.DrawerStore, hub Broadcaster, logger *slog.Logger) *DrawerHandler {
	return &DrawerHandler{drawers: drawers, hub: hub, logger: logger}
}

type drawerRequest struct {
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	SortOrder *int   `json:"sort_order"`
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (h *DrawerHandler) registry(w http.ResponseWriter, r *http.Request, fn func(*drawer.Registry) error) {
	session, err := openSession(r, h.logger)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer session.Close()
	reg := drawer.New(session, h.drawers, h.logger)
	defer reg.Close()

	if err := fn(reg); err != nil {
		writeError(w, h.logger, err)
	}
}

func (h *DrawerHandler) notify(r *http.Request, action, id string) {
	h.hub.Broadcast(auth.ScopeKey(r.Context()), ws.NewMessage("drawer", action, id))
}

func (h *DrawerHandler) List(w http.ResponseWriter, r *http.Request) {
	h.registry(w, r, func(reg *drawer.Registry) error {
		drawers, err := reg.List(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, drawers)
		return nil
	})
}

func (h *DrawerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req drawerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.registry(w, r, func(reg *drawer.Registry) error {
		d, err := reg.Add(r.Context(), model.DrawerDraft{Name: req.Name, Icon: req.Icon, SortOrder: req.SortOrder})
		if err != nil {
			return err
		}
		h.notify(r, "created", d.ID)
		writeJSON(w, http.StatusCreated, d)
		return nil
	})
}

func (h *DrawerHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch model.DrawerPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	h.registry(w, r, func(reg *drawer.Registry) error {
		d, err := reg.Update(r.Context(), id, patch)
		if err != nil {
			return err
		}
		h.notify(r, "updated", d.ID)
		writeJSON(w, http.StatusOK, d)
		return nil
	})
}

func (h *DrawerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.registry(w, r, func(reg *drawer.Registry) error {
		if err := reg.Delete(r.Context(), id); err != nil {
			return err
		}
		h.notify(r, "deleted", id)
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// Reorder takes the full new order; ids[i] gets sort order i.
func (h *DrawerHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.registry(w, r, func(reg *drawer.Registry) error {
		if err := reg.Reorder(r.Context(), req.IDs); err != nil {
			return err
		}
		h.notify(r, "reordered", "")
		drawers, err := reg.List(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, drawers)
		return nil
	})
}
