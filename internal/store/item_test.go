package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/database"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
)

func TestItemCreateNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	items := NewItemStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	f := scope.Filter{UserID: alice.ID}

	if _, err := items.Create(ctx, f, model.ItemDraft{Name: "Peas", Drawer: "Freezer", Quantity: 1}); err != nil {
		t.Fatalf("create peas: %v", err)
	}
	milk, err := items.Create(ctx, f, model.ItemDraft{Name: "Milk", Drawer: "Top Shelf", Quantity: 2})
	if err != nil {
		t.Fatalf("create milk: %v", err)
	}
	if milk.Quantity != 2 || milk.Position != nil || milk.HouseholdID != nil {
		t.Errorf("milk = %+v", milk)
	}

	list, err := items.List(ctx, f)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Milk" {
		t.Errorf("list = %+v, want Milk first", list)
	}
}

func TestItemCreateValidation(t *testing.T) {
	db := setupTestDB(t)
	items := NewItemStore(db)
	alice := seedUser(t, db, "alice@example.com")
	f := scope.Filter{UserID: alice.ID}

	tests := []struct {
		name  string
		draft model.ItemDraft
	}{
		{"missing name", model.ItemDraft{Drawer: "Top", Quantity: 1}},
		{"missing drawer", model.ItemDraft{Name: "Peas", Quantity: 1}},
		{"zero quantity", model.ItemDraft{Name: "Peas", Drawer: "Top", Quantity: 0}},
		{"bad expiry", model.ItemDraft{Name: "Peas", Drawer: "Top", Quantity: 1, ExpiryDate: "next week"}},
		{"negative position", model.ItemDraft{Name: "Peas", Drawer: "Top", Quantity: 1, Position: intPtr(-2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := items.Create(context.Background(), f, tt.draft); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want validation", err)
			}
		})
	}
}

func TestItemPositionConflict(t *testing.T) {
	db := setupTestDB(t)
	items := NewItemStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	f := scope.Filter{UserID: alice.ID}

	if _, err := items.Create(ctx, f, model.ItemDraft{Name: "Peas", Drawer: "Freezer", Quantity: 1, Position: intPtr(3)}); err != nil {
		t.Fatalf("create peas: %v", err)
	}
	_, err := items.Create(ctx, f, model.ItemDraft{Name: "Corn", Drawer: "Freezer", Quantity: 1, Position: intPtr(3)})
	if !errors.Is(err, apperr.ErrPositionConflict) {
		t.Fatalf("err = %v, want position conflict", err)
	}
	var e *apperr.Error
	if !errors.As(err, &e) || e.Position != 3 {
		t.Errorf("conflict position = %+v, want 3", e)
	}

	// Another user's personal space has its own numbering.
	bob := seedUser(t, db, "bob@example.com")
	if _, err := items.Create(ctx, scope.Filter{UserID: bob.ID}, model.ItemDraft{Name: "Corn", Drawer: "Freezer", Quantity: 1, Position: intPtr(3)}); err != nil {
		t.Errorf("bob create: %v", err)
	}
}

func TestItemPositionReuseAfterDelete(t *testing.T) {
	db := setupTestDB(t)
	items := NewItemStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	h := seedHousehold(t, db, alice, "Smiths")
	f := scope.Filter{UserID: alice.ID, HouseholdID: h.ID}

	peas, err := items.Create(ctx, f, model.ItemDraft{Name: "Peas", Drawer: "Freezer", Quantity: 1, Position: intPtr(5)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, _ := items.PositionAvailable(ctx, f, 5, ""); ok {
		t.Error("position 5 should be taken")
	}
	if ok, _ := items.PositionAvailable(ctx, f, 5, peas.ID); !ok {
		t.Error("position 5 should be free when excluding its holder")
	}

	if err := items.Delete(ctx, f, peas.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := items.Delete(ctx, f, peas.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}
	if _, err := items.Create(ctx, f, model.ItemDraft{Name: "Corn", Drawer: "Freezer", Quantity: 1, Position: intPtr(5)}); err != nil {
		t.Errorf("reuse position: %v", err)
	}
}

func TestItemUpdate(t *testing.T) {
	db := setupTestDB(t)
	items := NewItemStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	f := scope.Filter{UserID: alice.ID}

	peas, _ := items.Create(ctx, f, model.ItemDraft{Name: "Peas", Drawer: "Freezer", Quantity: 1, Position: intPtr(1)})
	if _, err := items.Create(ctx, f, model.ItemDraft{Name: "Corn", Drawer: "Freezer", Quantity: 1, Position: intPtr(2)}); err != nil {
		t.Fatalf("create corn: %v", err)
	}

	// Saving an item with its own position is not a conflict.
	updated, err := items.Update(ctx, f, peas.ID, model.ItemPatch{Position: intPtr(1), Quantity: intPtr(4)})
	if err != nil {
		t.Fatalf("update same position: %v", err)
	}
	if updated.Quantity != 4 || updated.Name != "Peas" || *updated.Position != 1 {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := items.Update(ctx, f, peas.ID, model.ItemPatch{Position: intPtr(2)}); !errors.Is(err, apperr.ErrPositionConflict) {
		t.Errorf("err = %v, want position conflict", err)
	}

	cleared, err := items.Update(ctx, f, peas.ID, model.ItemPatch{ClearPosition: true, Notes: strPtr("bag is open")})
	if err != nil {
		t.Fatalf("clear position: %v", err)
	}
	if cleared.Position != nil || cleared.Notes != "bag is open" {
		t.Errorf("cleared = %+v", cleared)
	}

	if _, err := items.Update(ctx, f, "missing", model.ItemPatch{Name: strPtr("x")}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v, want not found", err)
	}
}

func TestItemScopeIsolation(t *testing.T) {
	db := setupTestDB(t)
	items := NewItemStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	h1 := seedHousehold(t, db, alice, "Smiths")
	h2 := seedHousehold(t, db, alice, "Cabin")

	h1Scope := scope.Filter{UserID: alice.ID, HouseholdID: h1.ID}
	peas, err := items.Create(ctx, h1Scope, model.ItemDraft{Name: "Peas", Drawer: "Freezer", Quantity: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for name, f := range map[string]scope.Filter{
		"other household": {UserID: alice.ID, HouseholdID: h2.ID},
		"personal":        {UserID: alice.ID},
		"bob personal":    {UserID: bob.ID},
	} {
		list, err := items.List(ctx, f)
		if err != nil {
			t.Fatalf("%s list: %v", name, err)
		}
		if len(list) != 0 {
			t.Errorf("%s sees %d items, want 0", name, len(list))
		}
		if _, err := items.Update(ctx, f, peas.ID, model.ItemPatch{Name: strPtr("Stolen")}); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s update err = %v, want not found", name, err)
		}
	}

	if _, err := items.List(ctx, scope.Filter{UserID: bob.ID, HouseholdID: h1.ID}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("non-member list err = %v, want forbidden", err)
	}
	if err := items.Delete(ctx, scope.Filter{UserID: bob.ID, HouseholdID: h1.ID}, peas.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("non-member delete err = %v, want forbidden", err)
	}
}

func TestItemSharedAcrossMembers(t *testing.T) {
	db := setupTestDB(t)
	items := NewItemStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	h := seedHousehold(t, db, alice, "Smiths")
	addMember(t, db, h.ID, bob, model.RoleMember)

	if _, err := items.Create(ctx, scope.Filter{UserID: alice.ID, HouseholdID: h.ID}, model.ItemDraft{Name: "Peas", Drawer: "Freezer", Quantity: 1, Position: intPtr(9)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	bobScope := scope.Filter{UserID: bob.ID, HouseholdID: h.ID}
	list, err := items.List(ctx, bobScope)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("bob sees %d items, want 1", len(list))
	}
	if _, err := items.Create(ctx, bobScope, model.ItemDraft{Name: "Corn", Drawer: "Freezer", Quantity: 1, Position: intPtr(9)}); !errors.Is(err, apperr.ErrPositionConflict) {
		t.Errorf("err = %v, want position conflict across members", err)
	}
}

func TestItemIdempotencyKey(t *testing.T) {
	db := setupTestDB(t)
	items := NewItemStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	f := scope.Filter{UserID: alice.ID}

	draft := model.ItemDraft{Name: "Peas", Drawer: "Freezer", Quantity: 1, Position: intPtr(4), IdempotencyKey: "req-1"}
	first, err := items.Create(ctx, f, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	retry, err := items.Create(ctx, f, draft)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.ID != first.ID {
		t.Errorf("retry id = %q, want %q", retry.ID, first.ID)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM fridge_items`); n != 1 {
		t.Errorf("items = %d, want 1", n)
	}
}

func TestItemIdempotencyKeyIsScoped(t *testing.T) {
	db := setupTestDB(t)
	items := NewItemStore(db)
	homes := NewHouseholdStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	h := seedHousehold(t, db, alice, "Smiths")
	memberID := addMember(t, db, h.ID, bob, model.RoleMember)

	shared := scope.Filter{UserID: bob.ID, HouseholdID: h.ID}
	personal := scope.Filter{UserID: bob.ID}

	stew, err := items.Create(ctx, shared, model.ItemDraft{Name: "Stew", Drawer: "Freezer", Quantity: 1, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("create stew: %v", err)
	}
	note := "alice private note"
	if _, err := items.Update(ctx, scope.Filter{UserID: alice.ID, HouseholdID: h.ID}, stew.ID, model.ItemPatch{Notes: &note}); err != nil {
		t.Fatalf("update notes: %v", err)
	}

	soup, err := items.Create(ctx, personal, model.ItemDraft{Name: "Soup", Drawer: "Door", Quantity: 1, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("personal create with reused key: %v", err)
	}
	if soup.ID == stew.ID || soup.HouseholdID != nil || soup.Name != "Soup" {
		t.Errorf("personal create = %+v, want a new personal row", soup)
	}

	if err := homes.RemoveMember(ctx, alice.ID, memberID); err != nil {
		t.Fatalf("remove bob: %v", err)
	}

	if _, err := items.Create(ctx, shared, model.ItemDraft{Name: "Stew", Drawer: "Freezer", Quantity: 1, IdempotencyKey: "k1"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("replay after removal err = %v, want forbidden", err)
	}

	again, err := items.Create(ctx, personal, model.ItemDraft{Name: "Soup", Drawer: "Door", Quantity: 1, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("personal replay after removal: %v", err)
	}
	if again.ID != soup.ID || again.HouseholdID != nil {
		t.Errorf("personal replay = %+v, want the personal soup", again)
	}
	if again.Notes == note {
		t.Error("personal replay leaked household notes")
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM fridge_items`); n != 2 {
		t.Errorf("items = %d, want 2", n)
	}
}

func TestItemConcurrentSamePosition(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "frostbox.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	items := NewItemStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	h := seedHousehold(t, db, alice, "Smiths")
	addMember(t, db, h.ID, bob, model.RoleMember)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		user := alice
		if i%2 == 1 {
			user = bob
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := items.Create(ctx, scope.Filter{UserID: user.ID, HouseholdID: h.ID},
				model.ItemDraft{Name: "Stew", Drawer: "Freezer", Quantity: 1, Position: intPtr(7)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperr.ErrPositionConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM fridge_items WHERE position = 7`); n != 1 {
		t.Errorf("items at position 7 = %d, want 1", n)
	}
}
