package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.Name, &h.Role, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHouseholdMember(scanner interface{ Scan(...any) error }) (*model.HouseholdMember, error) {
	var m model.HouseholdMember
	err := scanner.Scan(&m.ID, &m.HouseholdID, &m.UserID, &m.Email, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const householdCols = `h.id, h.name, hm.role, h.created_at, h.updated_at`
const householdMemberCols = `hm.id, hm.household_id, hm.user_id, u.email, hm.role, hm.created_at`

// ListForUser returns every household userID belongs to, with the user's role.
func (s *HouseholdStore) ListForUser(ctx context.Context, userID string) ([]model.Household, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+householdCols+`
		 FROM households h
		 JOIN household_members hm ON h.id = hm.household_id
		 WHERE hm.user_id = ?
		 ORDER BY h.name ASC, h.created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list households for user: %w", err)
	}
	defer rows.Close()

	households := []model.Household{}
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	return households, rows.Err()
}

// Get returns a household as seen by userID. Non-members get not_found.
func (s *HouseholdStore) Get(ctx context.Context, userID, householdID string) (*model.Household, error) {
	return getHousehold(ctx, s.db, userID, householdID)
}

func getHousehold(ctx context.Context, q querier, userID, householdID string) (*model.Household, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+householdCols+`
		 FROM households h
		 JOIN household_members hm ON h.id = hm.household_id
		 WHERE h.id = ? AND hm.user_id = ?`,
		householdID, userID,
	)
	h, err := scanHousehold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("household not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

// CreateWithOwner inserts the household and the creator's owner membership in
// one transaction. Either both rows exist afterwards or neither does.
func (s *HouseholdStore) CreateWithOwner(ctx context.Context, userID, name string) (*model.Household, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("household name is required")
	}
	if userID == "" {
		return nil, apperr.NotAuthenticated()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	householdID := newID()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO households (id, name) VALUES (?, ?)`,
		householdID, name,
	); err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO household_members (id, household_id, user_id, role) VALUES (?, ?, ?, ?)`,
		newID(), householdID, userID, model.RoleOwner,
	); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}

	h, err := getHousehold(ctx, tx, userID, householdID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit household: %w", err)
	}
	return h, nil
}

// Rename changes the household name. Owner only.
func (s *HouseholdStore) Rename(ctx context.Context, userID, householdID, name string) (*model.Household, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("household name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireOwner(ctx, tx, householdID, userID, "rename the household"); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE households SET name = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now') WHERE id = ?`,
		name, householdID,
	); err != nil {
		return nil, fmt.Errorf("update household: %w", err)
	}
	h, err := getHousehold(ctx, tx, userID, householdID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rename: %w", err)
	}
	return h, nil
}

// Delete removes the household and everything scoped to it: members,
// invitations, drawers, items and their activity. Owner only. Irreversible.
func (s *HouseholdStore) Delete(ctx context.Context, userID, householdID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireOwner(ctx, tx, householdID, userID, "delete the household"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, householdID); err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	// Cascaded item deletes fire the activity trigger, so the trail goes last.
	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_log WHERE household_id = ?`, householdID); err != nil {
		return fmt.Errorf("delete household activity: %w", err)
	}
	return tx.Commit()
}

// ListMembers returns the members of a household with their e-mail. Only
// members may list.
func (s *HouseholdStore) ListMembers(ctx context.Context, userID, householdID string) ([]model.HouseholdMember, error) {
	role, err := memberRole(ctx, s.db, householdID, userID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, apperr.Forbidden("not a member of this household")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+householdMemberCols+`
		 FROM household_members hm
		 JOIN users u ON u.id = hm.user_id
		 WHERE hm.household_id = ?
		 ORDER BY hm.created_at ASC, hm.rowid ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []model.HouseholdMember{}
	for rows.Next() {
		m, err := scanHouseholdMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func getMember(ctx context.Context, q querier, memberID string) (*model.HouseholdMember, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+householdMemberCols+`
		 FROM household_members hm
		 JOIN users u ON u.id = hm.user_id
		 WHERE hm.id = ?`,
		memberID,
	)
	m, err := scanHouseholdMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("member not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func countOwners(ctx context.Context, q querier, householdID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM household_members WHERE household_id = ? AND role = ?`,
		householdID, model.RoleOwner,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

// ensureNotLastOwner fails when m is the only owner left.
func ensureNotLastOwner(ctx context.Context, q querier, m *model.HouseholdMember) error {
	if m.Role != model.RoleOwner {
		return nil
	}
	owners, err := countOwners(ctx, q, m.HouseholdID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return apperr.Conflict("a household needs at least one owner; make another member an owner or delete the household")
	}
	return nil
}

// Leave removes the caller's own membership. The last owner cannot leave.
func (s *HouseholdStore) Leave(ctx context.Context, userID, householdID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	role, err := memberRole(ctx, tx, householdID, userID)
	if err != nil {
		return err
	}
	if role == "" {
		return apperr.NotFound("household not found")
	}
	self := &model.HouseholdMember{HouseholdID: householdID, UserID: userID, Role: role}
	if err := ensureNotLastOwner(ctx, tx, self); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	); err != nil {
		return fmt.Errorf("leave household: %w", err)
	}
	return tx.Commit()
}

// RemoveMember deletes a membership row by its id. Owner only; the last owner
// cannot be removed.
func (s *HouseholdStore) RemoveMember(ctx context.Context, userID, memberID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m, err := getMember(ctx, tx, memberID)
	if err != nil {
		return err
	}
	if err := requireOwner(ctx, tx, m.HouseholdID, userID, "remove members"); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("member not found")
		}
		return err
	}
	if err := ensureNotLastOwner(ctx, tx, m); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM household_members WHERE id = ?`, memberID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return tx.Commit()
}

// SetMemberRole promotes or demotes a member. Owner only; the last owner
// cannot be demoted.
func (s *HouseholdStore) SetMemberRole(ctx context.Context, userID, memberID, role string) (*model.HouseholdMember, error) {
	if role != model.RoleOwner && role != model.RoleMember {
		return nil, apperr.Validation("role must be %q or %q", model.RoleOwner, model.RoleMember)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m, err := getMember(ctx, tx, memberID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, tx, m.HouseholdID, userID, "change roles"); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("member not found")
		}
		return nil, err
	}
	if m.Role == role {
		return m, tx.Commit()
	}
	if role == model.RoleMember {
		if err := ensureNotLastOwner(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE household_members SET role = ? WHERE id = ?`,
		role, memberID,
	); err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	updated, err := getMember(ctx, tx, memberID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit role: %w", err)
	}
	return updated, nil
}
