package drawer

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/database"
	"github.com/dukerupert/frostbox/internal/identity"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
	"github.com/dukerupert/frostbox/internal/store"
)

func setupRegistry(t *testing.T) (*Registry, *scope.Session, *store.HouseholdStore, *model.User) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	user, err := store.NewUserStore(db).Ensure(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	session := scope.NewSession(identity.NewLocal(user), slog.Default())
	t.Cleanup(session.Close)
	r := New(session, store.NewDrawerStore(db), slog.Default())
	t.Cleanup(r.Close)
	return r, session, store.NewHouseholdStore(db), user
}

func names(ds []model.Drawer) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegistryAddAppends(t *testing.T) {
	r, _, _, _ := setupRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"Top", "Middle", "Bottom"} {
		if _, err := r.Add(ctx, model.DrawerDraft{Name: name}); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	got := r.Drawers()
	if !equal(names(got), []string{"Top", "Middle", "Bottom"}) {
		t.Errorf("order = %v", names(got))
	}
	if got[2].SortOrder != 2 {
		t.Errorf("sort order = %d, want 2", got[2].SortOrder)
	}
}

func TestRegistryReorder(t *testing.T) {
	r, _, _, _ := setupRegistry(t)
	ctx := context.Background()

	a, _ := r.Add(ctx, model.DrawerDraft{Name: "A"})
	b, _ := r.Add(ctx, model.DrawerDraft{Name: "B"})
	c, _ := r.Add(ctx, model.DrawerDraft{Name: "C"})

	if err := r.Reorder(ctx, []string{b.ID, c.ID, a.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if got := names(r.Drawers()); !equal(got, []string{"B", "C", "A"}) {
		t.Errorf("local order = %v", got)
	}
	persisted, err := r.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := names(persisted); !equal(got, []string{"B", "C", "A"}) {
		t.Errorf("persisted order = %v", got)
	}

	err = r.Reorder(ctx, []string{a.ID, "missing", b.ID, c.ID})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if got := names(r.Drawers()); !equal(got, []string{"B", "C", "A"}) {
		t.Errorf("local order after failure = %v, want unchanged", got)
	}
}

func TestRegistryFollowsScope(t *testing.T) {
	r, session, households, user := setupRegistry(t)
	ctx := context.Background()

	if _, err := r.Add(ctx, model.DrawerDraft{Name: "Mine"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	h, err := households.CreateWithOwner(ctx, user.ID, "Smiths")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if err := session.Switch(ctx, h); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if len(r.Drawers()) != 0 {
		t.Errorf("household drawers = %v, want none", names(r.Drawers()))
	}

	shared, err := r.Add(ctx, model.DrawerDraft{Name: "Shared", Icon: "🥶"})
	if err != nil {
		t.Fatalf("add shared: %v", err)
	}
	if shared.HouseholdID == nil || *shared.HouseholdID != h.ID {
		t.Errorf("household id = %v, want %s", shared.HouseholdID, h.ID)
	}

	renamed, err := r.Update(ctx, shared.ID, model.DrawerPatch{Name: strPtr("Garage")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if renamed.Icon != "🥶" || r.Drawers()[0].Name != "Garage" {
		t.Errorf("renamed = %+v", renamed)
	}

	if err := r.Delete(ctx, shared.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(r.Drawers()) != 0 {
		t.Error("deleted drawer still cached")
	}
}

func strPtr(s string) *string { return &s }
