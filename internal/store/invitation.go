package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
)

// Outcome is the result envelope of an invitation procedure. A call can
// complete without error and still report Success=false; callers must check.
type Outcome struct {
	Success bool
	Kind    apperr.Kind
	Message string
}

func ok() Outcome {
	return Outcome{Success: true}
}

func fail(kind apperr.Kind, format string, args ...any) Outcome {
	return Outcome{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// failFrom turns a classified error into a failed outcome. Unclassified errors
// are returned as errors.
func failFrom(err error) (Outcome, error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		return Outcome{Kind: e.Kind, Message: e.Error()}, nil
	}
	return Outcome{}, err
}

// Err converts a failed outcome into an apperr error, nil on success.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	return apperr.New(o.Kind, o.Message)
}

type InviteOutcome struct {
	Outcome
	InviteID string
}

// ResendOutcome carries the invitation to notify when the resend slot was
// claimed. Cooldown is set instead when the previous send is too recent.
type ResendOutcome struct {
	Outcome
	Cooldown       bool
	HoursRemaining int
	Invitation     *model.Invitation
}

type InvitationStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db, now: time.Now}
}

// WithClock replaces the time source used for cooldown decisions.
func (s *InvitationStore) WithClock(now func() time.Time) *InvitationStore {
	s.now = now
	return s
}

func scanInvitation(scanner interface{ Scan(...any) error }) (*model.Invitation, error) {
	var inv model.Invitation
	var lastSent, responded sql.NullTime
	err := scanner.Scan(
		&inv.ID, &inv.HouseholdID, &inv.HouseholdName, &inv.InvitedEmail,
		&inv.InvitedBy, &inv.InvitedByEmail, &inv.Status,
		&inv.CreatedAt, &lastSent, &responded,
	)
	if err != nil {
		return nil, err
	}
	inv.LastSentAt = nullTimePtr(lastSent)
	inv.RespondedAt = nullTimePtr(responded)
	return &inv, nil
}

const invitationSelect = `SELECT i.id, i.household_id, h.name, i.invited_email,
	COALESCE(i.invited_by, ''), COALESCE(u.email, ''), i.status,
	i.created_at, i.last_sent_at, i.responded_at
	FROM household_invitations i
	JOIN households h ON h.id = i.household_id
	LEFT JOIN users u ON u.id = i.invited_by`

func getInvitation(ctx context.Context, q querier, id string) (*model.Invitation, error) {
	row := q.QueryRowContext(ctx, invitationSelect+` WHERE i.id = ?`, id)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("invitation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func listInvitations(ctx context.Context, q querier, where string, args ...any) ([]model.Invitation, error) {
	rows, err := q.QueryContext(ctx,
		invitationSelect+` WHERE `+where+` ORDER BY i.created_at DESC, i.rowid DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []model.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}

// Get returns an invitation with its household name and inviter e-mail.
func (s *InvitationStore) Get(ctx context.Context, id string) (*model.Invitation, error) {
	return getInvitation(ctx, s.db, id)
}

// Create records a pending invitation for email. Owner only. An address that
// already belongs to a member, or that already has a pending invitation to
// this household, is a conflict.
func (s *InvitationStore) Create(ctx context.Context, userID, householdID, email string) (InviteOutcome, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return InviteOutcome{Outcome: fail(apperr.KindValidation, "a valid e-mail address is required")}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return InviteOutcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireOwner(ctx, tx, householdID, userID, "invite members"); err != nil {
		o, err := failFrom(err)
		return InviteOutcome{Outcome: o}, err
	}

	var isMember bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM household_members hm
			JOIN users u ON u.id = hm.user_id
			WHERE hm.household_id = ? AND u.email = ?)`,
		householdID, email,
	).Scan(&isMember); err != nil {
		return InviteOutcome{}, fmt.Errorf("check membership: %w", err)
	}
	if isMember {
		return InviteOutcome{Outcome: fail(apperr.KindConflict, "%s is already a member of this household", email)}, nil
	}

	id := newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO household_invitations (id, household_id, invited_email, invited_by, status, last_sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, householdID, email, userID, string(model.InvitationPending), formatTime(s.now()),
	)
	if isUniqueViolation(err, "invited_email") {
		return InviteOutcome{Outcome: fail(apperr.KindConflict, "an invitation for %s is already pending", email)}, nil
	}
	if err != nil {
		return InviteOutcome{}, fmt.Errorf("insert invitation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return InviteOutcome{}, fmt.Errorf("commit invitation: %w", err)
	}
	return InviteOutcome{Outcome: ok(), InviteID: id}, nil
}

// ClaimResend takes the resend slot of a pending invitation. Owner only. When
// the last send is within cooldown nothing changes and the outcome reports the
// hours left; otherwise last_sent_at moves to now and the invitation is
// returned for delivery.
func (s *InvitationStore) ClaimResend(ctx context.Context, userID, inviteID string, cooldown time.Duration) (ResendOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ResendOutcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inv, err := getInvitation(ctx, tx, inviteID)
	if err != nil {
		o, err := failFrom(err)
		return ResendOutcome{Outcome: o}, err
	}
	if err := requireOwner(ctx, tx, inv.HouseholdID, userID, "resend invitations"); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			err = apperr.NotFound("invitation not found")
		}
		o, err := failFrom(err)
		return ResendOutcome{Outcome: o}, err
	}
	if inv.Status != model.InvitationPending {
		return ResendOutcome{Outcome: fail(apperr.KindConflict, "invitation is already %s", inv.Status)}, nil
	}

	now := s.now().UTC()
	if inv.LastSentAt != nil {
		if remaining := cooldown - now.Sub(*inv.LastSentAt); remaining > 0 {
			return ResendOutcome{
				Outcome:        fail(apperr.KindConflict, "invitation was sent recently"),
				Cooldown:       true,
				HoursRemaining: int(math.Ceil(remaining.Hours())),
			}, nil
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE household_invitations SET last_sent_at = ? WHERE id = ? AND status = ?`,
		formatTime(now), inviteID, string(model.InvitationPending),
	); err != nil {
		return ResendOutcome{}, fmt.Errorf("claim resend: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ResendOutcome{}, fmt.Errorf("commit resend: %w", err)
	}
	inv.LastSentAt = &now
	return ResendOutcome{Outcome: ok(), Invitation: inv}, nil
}

// Cancel moves a pending invitation to cancelled. Owner only.
func (s *InvitationStore) Cancel(ctx context.Context, userID, inviteID string) (Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inv, err := getInvitation(ctx, tx, inviteID)
	if err != nil {
		return failFrom(err)
	}
	if err := requireOwner(ctx, tx, inv.HouseholdID, userID, "cancel invitations"); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			err = apperr.NotFound("invitation not found")
		}
		return failFrom(err)
	}
	if err := s.respond(ctx, tx, inv, model.InvitationCancelled); err != nil {
		return failFrom(err)
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("commit cancel: %w", err)
	}
	return ok(), nil
}

// Accept joins the invitee to the household and marks the invitation
// accepted, in one transaction. Only the invited address may accept; anyone
// else sees not_found. An invitee who is already a member is not added twice.
func (s *InvitationStore) Accept(ctx context.Context, user *model.User, inviteID string) (Outcome, error) {
	if user == nil {
		return failFrom(apperr.NotAuthenticated())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inv, err := inviteeInvitation(ctx, tx, user, inviteID)
	if err != nil {
		return failFrom(err)
	}
	if err := s.respond(ctx, tx, inv, model.InvitationAccepted); err != nil {
		return failFrom(err)
	}

	role, err := memberRole(ctx, tx, inv.HouseholdID, user.ID)
	if err != nil {
		return Outcome{}, err
	}
	if role == "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO household_members (id, household_id, user_id, role) VALUES (?, ?, ?, ?)`,
			newID(), inv.HouseholdID, user.ID, model.RoleMember,
		); err != nil {
			return Outcome{}, fmt.Errorf("insert membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("commit accept: %w", err)
	}
	return ok(), nil
}

// Decline moves a pending invitation to declined. Invitee only.
func (s *InvitationStore) Decline(ctx context.Context, user *model.User, inviteID string) (Outcome, error) {
	if user == nil {
		return failFrom(apperr.NotAuthenticated())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inv, err := inviteeInvitation(ctx, tx, user, inviteID)
	if err != nil {
		return failFrom(err)
	}
	if err := s.respond(ctx, tx, inv, model.InvitationDeclined); err != nil {
		return failFrom(err)
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("commit decline: %w", err)
	}
	return ok(), nil
}

// ForUser is the invitee's inbox: pending invitations addressed to email.
func (s *InvitationStore) ForUser(ctx context.Context, email string) ([]model.Invitation, error) {
	return listInvitations(ctx, s.db,
		`i.invited_email = ? AND i.status = ?`,
		NormalizeEmail(email), string(model.InvitationPending),
	)
}

// PendingForHousehold lists a household's outstanding invitations. Owner only;
// members get forbidden and strangers not_found.
func (s *InvitationStore) PendingForHousehold(ctx context.Context, userID, householdID string) ([]model.Invitation, error) {
	if err := requireOwner(ctx, s.db, householdID, userID, "view pending invitations"); err != nil {
		return nil, err
	}
	return listInvitations(ctx, s.db,
		`i.household_id = ? AND i.status = ?`,
		householdID, string(model.InvitationPending),
	)
}

func inviteeInvitation(ctx context.Context, q querier, user *model.User, inviteID string) (*model.Invitation, error) {
	inv, err := getInvitation(ctx, q, inviteID)
	if err != nil {
		return nil, err
	}
	if inv.InvitedEmail != NormalizeEmail(user.Email) {
		return nil, apperr.NotFound("invitation not found")
	}
	return inv, nil
}

// respond performs the single allowed transition out of pending.
func (s *InvitationStore) respond(ctx context.Context, tx *sql.Tx, inv *model.Invitation, status model.InvitationStatus) error {
	if inv.Status.Terminal() {
		return apperr.Conflict("invitation is no longer pending (already %s)", inv.Status)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE household_invitations SET status = ?, responded_at = ? WHERE id = ? AND status = ?`,
		string(status), formatTime(s.now()), inv.ID, string(model.InvitationPending),
	)
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.Conflict("invitation is no longer pending")
	}
	inv.Status = status
	return nil
}
