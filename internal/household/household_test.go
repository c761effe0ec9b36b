package household

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/database"
	"github.com/dukerupert/frostbox/internal/identity"
	"github.com/dukerupert/frostbox/internal/inventory"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
	"github.com/dukerupert/frostbox/internal/store"
)

type client struct {
	dir     *Directory
	session *scope.Session
	items   *inventory.Service
	user    *model.User
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newClient(t *testing.T, db *sql.DB, email string) *client {
	t.Helper()
	user, err := store.NewUserStore(db).Ensure(context.Background(), email)
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	session := scope.NewSession(identity.NewLocal(user), slog.Default())
	t.Cleanup(session.Close)
	dir := New(session, store.NewHouseholdStore(db), slog.Default())
	t.Cleanup(dir.Close)
	items := inventory.New(session, store.NewItemStore(db), slog.Default())
	t.Cleanup(items.Close)
	return &client{dir: dir, session: session, items: items, user: user}
}

// join adds c to h as a plain member.
func join(t *testing.T, db *sql.DB, h *model.Household, c *client) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO household_members (id, household_id, user_id, role) VALUES (?, ?, ?, 'member')`,
		"m-"+c.user.ID, h.ID, c.user.ID,
	)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
}

func TestCreateThenSwitchShowsEmptyScope(t *testing.T) {
	db := setupDB(t)
	alice := newClient(t, db, "alice@example.com")
	ctx := context.Background()

	if _, err := alice.items.Add(ctx, inventory.Draft{Name: "Ice", Drawer: "Door"}); err != nil {
		t.Fatalf("add personal item: %v", err)
	}

	h, err := alice.dir.Create(ctx, "Smiths")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	list := alice.dir.Households()
	if len(list) != 1 || list[0].Role != model.RoleOwner || list[0].Name != "Smiths" {
		t.Fatalf("households = %+v, want one owned Smiths", list)
	}

	if err := alice.dir.Switch(ctx, h); err != nil {
		t.Fatalf("switch: %v", err)
	}
	items, err := alice.items.List(ctx)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("fresh household has %d items, want 0", len(items))
	}
}

func TestRenameRefreshesSelection(t *testing.T) {
	db := setupDB(t)
	alice := newClient(t, db, "alice@example.com")
	ctx := context.Background()

	h, _ := alice.dir.Create(ctx, "Smiths")
	alice.dir.Switch(ctx, h)
	gen := alice.session.Generation()

	if _, err := alice.dir.Rename(ctx, h.ID, "Smith Family"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got := alice.session.Household().Name; got != "Smith Family" {
		t.Errorf("selected name = %q", got)
	}
	if alice.session.Generation() != gen {
		t.Error("renaming must not count as a scope change")
	}
	if got := alice.dir.Households()[0].Name; got != "Smith Family" {
		t.Errorf("cached name = %q", got)
	}
}

func TestLeaveClearsSelection(t *testing.T) {
	db := setupDB(t)
	alice := newClient(t, db, "alice@example.com")
	bob := newClient(t, db, "bob@example.com")
	ctx := context.Background()

	h, _ := alice.dir.Create(ctx, "Smiths")
	join(t, db, h, bob)
	if _, err := bob.dir.List(ctx); err != nil {
		t.Fatalf("bob list: %v", err)
	}
	if err := bob.dir.Switch(ctx, &bob.dir.Households()[0]); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if err := bob.dir.Leave(ctx, h.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if bob.session.Household() != nil {
		t.Error("selection must be cleared after leaving")
	}
	if len(bob.dir.Households()) != 0 {
		t.Errorf("households = %+v, want none", bob.dir.Households())
	}

	if err := alice.dir.Leave(ctx, h.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("last owner leave err = %v, want conflict", err)
	}
}

func TestDeleteOwnerOnly(t *testing.T) {
	db := setupDB(t)
	alice := newClient(t, db, "alice@example.com")
	bob := newClient(t, db, "bob@example.com")
	ctx := context.Background()

	h, _ := alice.dir.Create(ctx, "Smiths")
	join(t, db, h, bob)
	alice.dir.Switch(ctx, h)

	if err := bob.dir.Delete(ctx, h.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("member delete err = %v, want forbidden", err)
	}
	if err := alice.dir.Delete(ctx, h.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if alice.session.Household() != nil {
		t.Error("selection must be cleared after delete")
	}
	if len(alice.dir.Households()) != 0 {
		t.Error("deleted household still cached")
	}
}

func TestMembersAndRoles(t *testing.T) {
	db := setupDB(t)
	alice := newClient(t, db, "alice@example.com")
	bob := newClient(t, db, "bob@example.com")
	ctx := context.Background()

	h, _ := alice.dir.Create(ctx, "Smiths")
	join(t, db, h, bob)

	members, err := alice.dir.ListMembers(ctx, h.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	var bobMember model.HouseholdMember
	for _, m := range members {
		if m.UserID == bob.user.ID {
			bobMember = m
		}
	}

	if err := bob.dir.RemoveMember(ctx, bobMember.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("member remove err = %v, want forbidden", err)
	}
	if _, err := alice.dir.SetMemberRole(ctx, bobMember.ID, model.RoleOwner); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := alice.dir.Leave(ctx, h.ID); err != nil {
		t.Fatalf("leave after promoting bob: %v", err)
	}
	if _, err := bob.dir.List(ctx); err != nil {
		t.Fatalf("bob list: %v", err)
	}
	if got := bob.dir.Households(); len(got) != 1 || got[0].Role != model.RoleOwner {
		t.Errorf("bob households = %+v, want owner", got)
	}
}

func TestLogoutClearsHouseholds(t *testing.T) {
	db := setupDB(t)
	user, _ := store.NewUserStore(db).Ensure(context.Background(), "alice@example.com")
	id := identity.NewLocal(user)
	session := scope.NewSession(id, slog.Default())
	defer session.Close()
	dir := New(session, store.NewHouseholdStore(db), slog.Default())
	defer dir.Close()
	ctx := context.Background()

	if _, err := dir.Create(ctx, "Smiths"); err != nil {
		t.Fatalf("create: %v", err)
	}
	id.SetUser(nil)
	if len(dir.Households()) != 0 {
		t.Error("households must be cleared on logout")
	}
	if _, err := dir.Create(ctx, "Other"); !errors.Is(err, apperr.ErrNotAuthenticated) {
		t.Errorf("create err = %v, want not authenticated", err)
	}
}
