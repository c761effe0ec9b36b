package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/frostbox/internal/invitation"
	"github.com/dukerupert/frostbox/internal/scope"
	"github.com/dukerupert/frostbox/internal/store"
	ws "github.com/dukerupert/frostbox/internal/websocket"
)

type InvitationHandler struct {
	invitations *store.InvitationStore
	sender      invitation.Sender
	cooldown    time.Duration
	hub         Broadcaster
	logger      *slog.Logger
}

func NewInvitationHandler(invitations *store.InvitationStore, sender invitation.Sender, cooldown time.Duration, hub Broadcaster, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{
		invitations: invitations,
		sender:      sender,
		cooldown:    cooldown,
		hub:         hub,
		logger:      logger,
	}
}

type inviteRequest struct {
	Email string `json:"email"`
}

func (h *InvitationHandler) workflow(w http.ResponseWriter, r *http.Request, fn func(*invitation.Workflow) error) {
	session, err := openSession(r, h.logger)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer session.Close()
	wf := invitation.New(session, h.invitations, h.sender, h.cooldown, h.logger)
	defer wf.Close()

	if err := fn(wf); err != nil {
		writeError(w, h.logger, err)
	}
}

// Inbox lists pending invitations addressed to the caller.
func (h *InvitationHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, func(wf *invitation.Workflow) error {
		list, err := wf.Inbox(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, list)
		return nil
	})
}

// Outgoing lists a household's pending invitations; non-owners get [].
func (h *InvitationHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	householdID := chi.URLParam(r, "id")
	h.workflow(w, r, func(wf *invitation.Workflow) error {
		list, err := wf.Outgoing(r.Context(), householdID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, list)
		return nil
	})
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	householdID := chi.URLParam(r, "id")
	h.workflow(w, r, func(wf *invitation.Workflow) error {
		res, err := wf.Invite(r.Context(), householdID, req.Email)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, res)
		return nil
	})
}

// Resend answers 200 both when the e-mail went out and when the cooldown
// has not passed; the body says which.
func (h *InvitationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.workflow(w, r, func(wf *invitation.Workflow) error {
		res, err := wf.Resend(r.Context(), id)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, res)
		return nil
	})
}

func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancelled", (*invitation.Workflow).Cancel)
}

func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "accepted", (*invitation.Workflow).Accept)
}

func (h *InvitationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "declined", (*invitation.Workflow).Decline)
}

func (h *InvitationHandler) transition(w http.ResponseWriter, r *http.Request, action string, call func(*invitation.Workflow, context.Context, string) error) {
	id := chi.URLParam(r, "id")
	h.workflow(w, r, func(wf *invitation.Workflow) error {
		if err := call(wf, r.Context(), id); err != nil {
			return err
		}
		if inv, err := h.invitations.Get(r.Context(), id); err == nil {
			key := scope.Filter{HouseholdID: inv.HouseholdID}.Key()
			h.hub.Broadcast(key, ws.NewMessage("invitation", action, id))
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}
