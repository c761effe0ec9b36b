// Package invitation runs the invitation lifecycle: an owner invites an
// address, the invitee accepts or declines, the owner may resend or cancel.
// Every state change happens in one store procedure; e-mail is best effort.
package invitation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/email"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
	"github.com/dukerupert/frostbox/internal/store"
)

// DefaultResendCooldown is the minimum time between two e-mails for the same
// invitation.
const DefaultResendCooldown = 24 * time.Hour

// Sender delivers invitation e-mails.
type Sender interface {
	SendHouseholdInvite(ctx context.Context, inv email.Invite) error
}

// InviteResult reports a created invitation. EmailSent is false when the
// invitation exists but its e-mail could not be delivered.
type InviteResult struct {
	InviteID  string `json:"invite_id"`
	EmailSent bool   `json:"email_sent"`
}

// ResendResult either reports a sent e-mail or, with Cooldown set, how long
// to wait. A cooldown is not an error.
type ResendResult struct {
	Sent           bool `json:"sent"`
	Cooldown       bool `json:"cooldown"`
	HoursRemaining int  `json:"hours_remaining,omitempty"`
}

type Workflow struct {
	session     *scope.Session
	invitations *store.InvitationStore
	sender      Sender
	cooldown    time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	inbox    []model.Invitation
	outgoing map[string][]model.Invitation
	cachedBy string

	unsubscribe func()
}

func New(session *scope.Session, invitations *store.InvitationStore, sender Sender, cooldown time.Duration, logger *slog.Logger) *Workflow {
	if cooldown <= 0 {
		cooldown = DefaultResendCooldown
	}
	w := &Workflow{
		session:     session,
		invitations: invitations,
		sender:      sender,
		cooldown:    cooldown,
		logger:      logger.With("component", "invitation"),
		outgoing:    make(map[string][]model.Invitation),
	}
	w.unsubscribe = session.Subscribe(w.onScopeChange)
	return w
}

func (w *Workflow) Close() {
	w.unsubscribe()
}

// onScopeChange drops both views when the signed-in user changes.
func (w *Workflow) onScopeChange(ctx context.Context) error {
	user := w.session.User()

	w.mu.Lock()
	if user != nil && w.cachedBy == user.ID {
		w.mu.Unlock()
		return nil
	}
	w.inbox = nil
	w.outgoing = make(map[string][]model.Invitation)
	w.cachedBy = ""
	w.mu.Unlock()

	if user == nil {
		return nil
	}
	_, err := w.Inbox(ctx)
	return err
}

func (w *Workflow) currentUser() (*model.User, error) {
	user := w.session.User()
	if user == nil {
		return nil, apperr.NotAuthenticated()
	}
	return user, nil
}

// Invite creates a pending invitation and then tries to e-mail it. Only the
// invitation decides success; a failed e-mail sets EmailSent=false.
func (w *Workflow) Invite(ctx context.Context, householdID, address string) (InviteResult, error) {
	user, err := w.currentUser()
	if err != nil {
		return InviteResult{}, err
	}

	out, err := w.invitations.Create(ctx, user.ID, householdID, address)
	if err != nil {
		return InviteResult{}, apperr.Normalize(err)
	}
	if !out.Success {
		return InviteResult{}, out.Err()
	}
	w.logger.Info("invitation created", "invite_id", out.InviteID, "household_id", householdID)

	result := InviteResult{InviteID: out.InviteID}
	inv, err := w.invitations.Get(ctx, out.InviteID)
	if err != nil {
		w.logger.Warn("load invitation for e-mail", "invite_id", out.InviteID, "error", err)
	} else if err := w.send(ctx, inv); err != nil {
		w.logger.Warn("invitation e-mail not sent", "invite_id", out.InviteID, "error", err)
	} else {
		result.EmailSent = true
	}

	w.refresh(ctx)
	return result, nil
}

// Resend e-mails a pending invitation again, at most once per cooldown.
// The cooldown starts when the slot is claimed, so a failed delivery still
// uses it up.
func (w *Workflow) Resend(ctx context.Context, inviteID string) (ResendResult, error) {
	user, err := w.currentUser()
	if err != nil {
		return ResendResult{}, err
	}

	out, err := w.invitations.ClaimResend(ctx, user.ID, inviteID, w.cooldown)
	if err != nil {
		return ResendResult{}, apperr.Normalize(err)
	}
	if out.Cooldown {
		return ResendResult{Cooldown: true, HoursRemaining: out.HoursRemaining}, nil
	}
	if !out.Success {
		return ResendResult{}, out.Err()
	}

	if err := w.send(ctx, out.Invitation); err != nil {
		w.logger.Warn("invitation e-mail not resent", "invite_id", inviteID, "error", err)
		w.refresh(ctx)
		return ResendResult{}, &apperr.Error{
			Kind:    apperr.KindTransport,
			Message: "could not send the invitation e-mail",
			Err:     err,
		}
	}

	w.refresh(ctx)
	return ResendResult{Sent: true}, nil
}

// Cancel withdraws a pending invitation. Owner only.
func (w *Workflow) Cancel(ctx context.Context, inviteID string) error {
	user, err := w.currentUser()
	if err != nil {
		return err
	}
	return w.transition(ctx, func() (store.Outcome, error) {
		return w.invitations.Cancel(ctx, user.ID, inviteID)
	})
}

// Accept joins the signed-in user to the inviting household. A second accept
// of the same invitation fails with a conflict.
func (w *Workflow) Accept(ctx context.Context, inviteID string) error {
	user, err := w.currentUser()
	if err != nil {
		return err
	}
	return w.transition(ctx, func() (store.Outcome, error) {
		return w.invitations.Accept(ctx, user, inviteID)
	})
}

func (w *Workflow) Decline(ctx context.Context, inviteID string) error {
	user, err := w.currentUser()
	if err != nil {
		return err
	}
	return w.transition(ctx, func() (store.Outcome, error) {
		return w.invitations.Decline(ctx, user, inviteID)
	})
}

func (w *Workflow) transition(ctx context.Context, call func() (store.Outcome, error)) error {
	out, err := call()
	if err != nil {
		return apperr.Normalize(err)
	}
	if !out.Success {
		return out.Err()
	}
	w.refresh(ctx)
	return nil
}

// Inbox reloads the invitations addressed to the signed-in user.
func (w *Workflow) Inbox(ctx context.Context) ([]model.Invitation, error) {
	user, err := w.currentUser()
	if err != nil {
		return nil, err
	}
	invitations, err := w.invitations.ForUser(ctx, user.Email)
	if err != nil {
		return nil, apperr.Normalize(err)
	}

	w.mu.Lock()
	w.inbox = invitations
	w.cachedBy = user.ID
	w.mu.Unlock()
	return cloneInvitations(invitations), nil
}

// Outgoing reloads a household's pending invitations. Callers who may not
// see them get an empty list.
func (w *Workflow) Outgoing(ctx context.Context, householdID string) ([]model.Invitation, error) {
	user, err := w.currentUser()
	if err != nil {
		return nil, err
	}
	invitations, err := w.invitations.PendingForHousehold(ctx, user.ID, householdID)
	if errors.Is(err, apperr.ErrForbidden) || errors.Is(err, apperr.ErrNotFound) {
		invitations = []model.Invitation{}
	} else if err != nil {
		return nil, apperr.Normalize(err)
	}

	w.mu.Lock()
	w.outgoing[householdID] = invitations
	w.cachedBy = user.ID
	w.mu.Unlock()
	return cloneInvitations(invitations), nil
}

// Cached returns the last loaded inbox and outgoing list for householdID.
func (w *Workflow) Cached(householdID string) (inbox, outgoing []model.Invitation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneInvitations(w.inbox), cloneInvitations(w.outgoing[householdID])
}

// refresh re-fetches the inbox and every outgoing list seen so far.
func (w *Workflow) refresh(ctx context.Context) {
	if _, err := w.Inbox(ctx); err != nil {
		w.logger.Warn("refresh inbox", "error", err)
	}

	w.mu.Lock()
	ids := make([]string, 0, len(w.outgoing))
	for id := range w.outgoing {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		if _, err := w.Outgoing(ctx, id); err != nil {
			w.logger.Warn("refresh outgoing invitations", "household_id", id, "error", err)
		}
	}
}

func (w *Workflow) send(ctx context.Context, inv *model.Invitation) error {
	if w.sender == nil {
		return errors.New("no e-mail sender configured")
	}
	return w.sender.SendHouseholdInvite(ctx, email.Invite{
		InviteID:       inv.ID,
		HouseholdName:  inv.HouseholdName,
		InvitedByEmail: inv.InvitedByEmail,
		InviteeEmail:   inv.InvitedEmail,
	})
}

func cloneInvitations(in []model.Invitation) []model.Invitation {
	if in == nil {
		return []model.Invitation{}
	}
	out := make([]model.Invitation, len(in))
	copy(out, in)
	return out
}
