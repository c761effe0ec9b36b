package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/auth"
	"github.com/dukerupert/frostbox/internal/inventory"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/store"
	ws "github.com/dukerupert/frostbox/internal/websocket"
)

type ItemHandler struct {
	items  *store.ItemStore
	hub    Broadcaster
	logger *slog.Logger
	now    func() time.Time
}

func NewItemHandler(items *store.ItemStore, hub Broadcaster, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{items: items, hub: hub, logger: logger, now: time.Now}
}

// service runs fn against an inventory service bound to the request scope.
func (h *ItemHandler) service(w http.ResponseWriter, r *http.Request, fn func(*inventory.Service) error) {
	session, err := openSession(r, h.logger)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer session.Close()
	svc := inventory.New(session, h.items, h.logger)
	defer svc.Close()

	if err := fn(svc); err != nil {
		writeError(w, h.logger, err)
	}
}

func (h *ItemHandler) notify(r *http.Request, action, id string) {
	h.hub.Broadcast(auth.ScopeKey(r.Context()), ws.NewMessage("item", action, id))
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	h.service(w, r, func(svc *inventory.Service) error {
		items, err := svc.List(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, items)
		return nil
	})
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft inventory.Draft
	if err := decode(r, &draft); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.service(w, r, func(svc *inventory.Service) error {
		item, err := svc.Add(r.Context(), draft)
		if err != nil {
			return err
		}
		h.notify(r, "created", item.ID)
		writeJSON(w, http.StatusCreated, item)
		return nil
	})
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch model.ItemPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	h.service(w, r, func(svc *inventory.Service) error {
		item, err := svc.Update(r.Context(), id, patch)
		if err != nil {
			return err
		}
		h.notify(r, "updated", item.ID)
		writeJSON(w, http.StatusOK, item)
		return nil
	})
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.service(w, r, func(svc *inventory.Service) error {
		if err := svc.Delete(r.Context(), id); err != nil {
			return err
		}
		h.notify(r, "deleted", id)
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// PositionAvailable answers GET /api/items/positions/{position}?exclude=id.
func (h *ItemHandler) PositionAvailable(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || position <= 0 {
		writeError(w, h.logger, apperr.Validation("position must be a positive number"))
		return
	}
	exclude := r.URL.Query().Get("exclude")
	h.service(w, r, func(svc *inventory.Service) error {
		ok, err := svc.PositionAvailable(r.Context(), position, exclude)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"position": position, "available": ok})
		return nil
	})
}

// Expiring lists items that expire within the week, soonest first.
func (h *ItemHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	h.service(w, r, func(svc *inventory.Service) error {
		expiring, err := svc.Expiring(r.Context(), h.now())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, expiring)
		return nil
	})
}
