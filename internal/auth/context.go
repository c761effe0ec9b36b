package auth

import (
	"context"

	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
)

type contextKey struct{}

// AuthContext is what the identity middleware learned about a request.
// Household is nil in personal scope.
type AuthContext struct {
	User      *model.User
	Household *model.Household
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func User(ctx context.Context) *model.User {
	ac, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return ac.User
}

func UserID(ctx context.Context) string {
	if u := User(ctx); u != nil {
		return u.ID
	}
	return ""
}

func HouseholdID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok || ac.Household == nil {
		return ""
	}
	return ac.Household.ID
}

// ScopeKey is the fan-out key of the request's scope, or "" when no user is
// signed in.
func ScopeKey(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	f, err := scope.Resolve(ac.User, ac.Household)
	if err != nil {
		return ""
	}
	return f.Key()
}
