package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/frostbox/internal/database"
	"github.com/dukerupert/frostbox/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Ensure(context.Background(), email)
	if err != nil {
		t.Fatalf("ensure user %s: %v", email, err)
	}
	return u
}

func seedHousehold(t *testing.T, db *sql.DB, owner *model.User, name string) *model.Household {
	t.Helper()
	h, err := NewHouseholdStore(db).CreateWithOwner(context.Background(), owner.ID, name)
	if err != nil {
		t.Fatalf("create household %s: %v", name, err)
	}
	return h
}

// addMember joins user to a household directly, bypassing invitations.
func addMember(t *testing.T, db *sql.DB, householdID string, user *model.User, role string) string {
	t.Helper()
	id := newID()
	_, err := db.Exec(
		`INSERT INTO household_members (id, household_id, user_id, role) VALUES (?, ?, ?, ?)`,
		id, householdID, user.ID, role,
	)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	return id
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }
