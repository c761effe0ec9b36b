package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/frostbox/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	user := &model.User{ID: "u1", Email: "alice@example.com"}
	household := &model.Household{ID: "h1", Name: "Smiths", Role: model.RoleOwner}

	ctx := WithAuth(context.Background(), AuthContext{User: user, Household: household})
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.User != user || got.Household != household {
		t.Errorf("got %+v", got)
	}
	if UserID(ctx) != "u1" {
		t.Errorf("UserID = %q, want u1", UserID(ctx))
	}
	if HouseholdID(ctx) != "h1" {
		t.Errorf("HouseholdID = %q, want h1", HouseholdID(ctx))
	}
	if ScopeKey(ctx) != "household:h1" {
		t.Errorf("ScopeKey = %q, want household:h1", ScopeKey(ctx))
	}
}

func TestPersonalScope(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{User: &model.User{ID: "u1"}})
	if HouseholdID(ctx) != "" {
		t.Errorf("HouseholdID = %q, want empty", HouseholdID(ctx))
	}
	if ScopeKey(ctx) != "user:u1" {
		t.Errorf("ScopeKey = %q, want user:u1", ScopeKey(ctx))
	}
}

func TestFromContextMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Error("expected no AuthContext")
	}
	if User(ctx) != nil || UserID(ctx) != "" || HouseholdID(ctx) != "" || ScopeKey(ctx) != "" {
		t.Error("helpers must return zero values without auth")
	}
}
