package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
)

func drawerNames(ds []model.Drawer) []string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	return names
}

func TestDrawerCreateAppends(t *testing.T) {
	db := setupTestDB(t)
	drawers := NewDrawerStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	f := scope.Filter{UserID: alice.ID}

	top, err := drawers.Create(ctx, f, model.DrawerDraft{Name: "Top"})
	if err != nil {
		t.Fatalf("create top: %v", err)
	}
	if top.SortOrder != 0 || top.Icon != model.DefaultDrawerIcon {
		t.Errorf("top = %+v, want sort 0 and default icon", top)
	}

	bottom, err := drawers.Create(ctx, f, model.DrawerDraft{Name: "Bottom", Icon: "🧊"})
	if err != nil {
		t.Fatalf("create bottom: %v", err)
	}
	if bottom.SortOrder != 1 || bottom.Icon != "🧊" {
		t.Errorf("bottom = %+v, want sort 1", bottom)
	}

	if _, err := drawers.Create(ctx, f, model.DrawerDraft{Name: " "}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank name err = %v, want validation", err)
	}
}

func TestDrawerUpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	drawers := NewDrawerStore(db)
	items := NewItemStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	f := scope.Filter{UserID: alice.ID}

	d, _ := drawers.Create(ctx, f, model.DrawerDraft{Name: "Top"})
	if _, err := items.Create(ctx, f, model.ItemDraft{Name: "Peas", Drawer: "Top", Quantity: 1}); err != nil {
		t.Fatalf("create item: %v", err)
	}

	renamed, err := drawers.Update(ctx, f, d.ID, model.DrawerPatch{Name: strPtr("Upper")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if renamed.Name != "Upper" || renamed.Icon != model.DefaultDrawerIcon {
		t.Errorf("renamed = %+v", renamed)
	}

	if err := drawers.Delete(ctx, f, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := drawers.Delete(ctx, f, d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}

	// Items keep their free-text label.
	list, err := items.List(ctx, f)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(list) != 1 || list[0].Drawer != "Top" {
		t.Errorf("items = %+v, want Peas still in Top", list)
	}
}

func TestDrawerReorder(t *testing.T) {
	db := setupTestDB(t)
	drawers := NewDrawerStore(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	h := seedHousehold(t, db, alice, "Smiths")
	f := scope.Filter{UserID: alice.ID, HouseholdID: h.ID}

	a, _ := drawers.Create(ctx, f, model.DrawerDraft{Name: "A"})
	b, _ := drawers.Create(ctx, f, model.DrawerDraft{Name: "B"})
	c, _ := drawers.Create(ctx, f, model.DrawerDraft{Name: "C"})

	if err := drawers.Reorder(ctx, f, []string{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	list, err := drawers.List(ctx, f)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := drawerNames(list)
	want := []string{"C", "A", "B"}
	for i := range want {
		if got[i] != want[i] || list[i].SortOrder != i {
			t.Fatalf("order = %v, want %v with dense sort orders", got, want)
		}
	}

	// A foreign id aborts the whole reorder.
	personal, _ := drawers.Create(ctx, scope.Filter{UserID: alice.ID}, model.DrawerDraft{Name: "Mine"})
	err = drawers.Reorder(ctx, f, []string{a.ID, b.ID, personal.ID, c.ID})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	list, _ = drawers.List(ctx, f)
	got = drawerNames(list)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order after failed reorder = %v, want %v", got, want)
			break
		}
	}

	if err := drawers.Reorder(ctx, f, []string{a.ID, a.ID}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("duplicate id err = %v, want validation", err)
	}
}
