// Package store is the authoritative data layer. Every multi-row procedure
// runs inside one SQLite transaction and checks authorization itself, so the
// services above it can treat each call as an opaque atomic unit.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
)

// timeFormat matches the column defaults so stored times compare as text.
const timeFormat = "2006-01-02 15:04:05.000"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func newID() string {
	return uuid.NewString()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure whose
// message names column.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	unique := errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	if !unique && !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return false
	}
	return strings.Contains(err.Error(), column)
}

// scopeWhere returns the WHERE fragment that limits a table to one scope.
func scopeWhere(f scope.Filter) (string, []any) {
	if f.Personal() {
		return "user_id = ? AND household_id IS NULL", []any{f.UserID}
	}
	return "household_id = ?", []any{f.HouseholdID}
}

// memberRole returns the role of userID in householdID, or "" when the user
// is not a member.
func memberRole(ctx context.Context, q querier, householdID, userID string) (string, error) {
	var role string
	err := q.QueryRowContext(ctx,
		`SELECT role FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get member role: %w", err)
	}
	return role, nil
}

// authorize checks that the acting user may touch rows in f. Personal scope
// needs only a user; household scope needs a membership.
func authorize(ctx context.Context, q querier, f scope.Filter) error {
	if f.UserID == "" {
		return apperr.NotAuthenticated()
	}
	if f.Personal() {
		return nil
	}
	role, err := memberRole(ctx, q, f.HouseholdID, f.UserID)
	if err != nil {
		return err
	}
	if role == "" {
		return apperr.Forbidden("not a member of this household")
	}
	return nil
}

// requireOwner checks that userID owns householdID. A non-member gets
// not_found so that household ids do not leak.
func requireOwner(ctx context.Context, q querier, householdID, userID, action string) error {
	role, err := memberRole(ctx, q, householdID, userID)
	if err != nil {
		return err
	}
	switch role {
	case model.RoleOwner:
		return nil
	case "":
		return apperr.NotFound("household not found")
	default:
		return apperr.Forbidden("only owners can %s", action)
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
