package activity

import (
	"context"
	"encoding/json"
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

func TestDescribe(t *testing.T) {
	change := func(old, new string) model.Change {
		return model.Change{Old: json.RawMessage(old), New: json.RawMessage(new)}
	}
	tests := []struct {
		name string
		in   model.Activity
		want string
	}{
		{
			name: "created",
			in:   model.Activity{Action: model.ActionCreated, ItemName: "Peas", ItemDrawer: "Door"},
			want: `Added "Peas" to Door`,
		},
		{
			name: "created without drawer",
			in:   model.Activity{Action: model.ActionCreated, ItemName: "Peas"},
			want: `Added "Peas" to freezer`,
		},
		{
			name: "deleted",
			in:   model.Activity{Action: model.ActionDeleted, ItemName: "Peas"},
			want: `Removed "Peas" from freezer`,
		},
		{
			name: "quantity only",
			in: model.Activity{
				Action:   model.ActionUpdated,
				ItemName: "Peas",
				Changes:  map[string]model.Change{"quantity": change("1", "3")},
			},
			want: `Updated quantity of "Peas" from 1 to 3`,
		},
		{
			name: "several fields",
			in: model.Activity{
				Action:   model.ActionUpdated,
				ItemName: "Peas",
				Changes: map[string]model.Change{
					"quantity": change("1", "3"),
					"drawer":   change(`"Door"`, `"Bottom"`),
				},
			},
			want: `Updated "Peas"`,
		},
		{
			name: "one other field",
			in: model.Activity{
				Action:   model.ActionUpdated,
				ItemName: "Peas",
				Changes:  map[string]model.Change{"notes": change(`""`, `"frozen june"`)},
			},
			want: `Updated "Peas"`,
		},
		{
			name: "unknown action",
			in:   model.Activity{Action: "archived", ItemName: "Peas"},
			want: `archived "Peas"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.in); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fixture struct {
	ledger  *Ledger
	session *scope.Session
	items   *store.ItemStore
	homes   *store.HouseholdStore
	user    *model.User
	id      *identity.Local
}

func setup(t *testing.T) *fixture {
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
	id := identity.NewLocal(user)
	session := scope.NewSession(id, slog.Default())
	t.Cleanup(session.Close)
	ledger := New(session, store.NewActivityStore(db), slog.Default())
	t.Cleanup(ledger.Close)
	return &fixture{ledger: ledger, session: session, items: store.NewItemStore(db), homes: store.NewHouseholdStore(db), user: user, id: id}
}

func TestListDescribesPersonalHistory(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	f := scope.Filter{UserID: fx.user.ID}

	peas, err := fx.items.Create(ctx, f, model.ItemDraft{Name: "Peas", Drawer: "Door", Quantity: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	three := 3
	if _, err := fx.items.Update(ctx, f, peas.ID, model.ItemPatch{Quantity: &three}); err != nil {
		t.Fatalf("update: %v", err)
	}

	entries, err := fx.ledger.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	want := []string{`Updated quantity of "Peas" from 1 to 3`, `Added "Peas" to Door`}
	for i, e := range entries {
		if got := Describe(e); got != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got, want[i])
		}
	}
	if len(fx.ledger.Recent()) != 2 {
		t.Errorf("recent = %d, want 2", len(fx.ledger.Recent()))
	}

	page, err := fx.ledger.List(ctx, 1, 1)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page) != 1 || page[0].Action != model.ActionCreated {
		t.Errorf("page = %+v, want the create entry", page)
	}
	if len(fx.ledger.Recent()) != 2 {
		t.Error("later pages must not replace the first page")
	}

	if _, err := fx.ledger.List(ctx, MaxLimit*10, 0); err != nil {
		t.Errorf("oversized limit: %v", err)
	}
}

func TestScopeChangeReloads(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	if _, err := fx.items.Create(ctx, scope.Filter{UserID: fx.user.ID}, model.ItemDraft{Name: "Peas", Drawer: "Door", Quantity: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := fx.ledger.List(ctx, 0, 0); err != nil {
		t.Fatalf("list: %v", err)
	}

	h, err := fx.homes.CreateWithOwner(ctx, fx.user.ID, "Smiths")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if err := fx.session.Switch(ctx, h); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if got := fx.ledger.Recent(); len(got) != 0 {
		t.Errorf("household recent = %+v, want empty", got)
	}

	if err := fx.session.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := fx.ledger.Recent(); len(got) != 1 {
		t.Errorf("personal recent = %d entries, want 1", len(got))
	}
}

func TestListRequiresUser(t *testing.T) {
	fx := setup(t)
	fx.id.SetUser(nil)
	if len(fx.ledger.Recent()) != 0 {
		t.Error("recent must be cleared on logout")
	}
	if _, err := fx.ledger.List(context.Background(), 0, 0); !errors.Is(err, apperr.ErrNotAuthenticated) {
		t.Errorf("err = %v, want not authenticated", err)
	}
}
