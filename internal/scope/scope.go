// Package scope decides which partition of the inventory a request reads and
// writes: the signed-in user's personal space, or one shared household.
package scope

import (
	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
)

// Filter identifies one scope. UserID is always the acting user. An empty
// HouseholdID selects the acting user's personal space.
type Filter struct {
	UserID      string
	HouseholdID string
}

// Resolve computes the filter for a user and an optional selected household.
func Resolve(user *model.User, household *model.Household) (Filter, error) {
	if user == nil || user.ID == "" {
		return Filter{}, apperr.NotAuthenticated()
	}
	f := Filter{UserID: user.ID}
	if household != nil {
		f.HouseholdID = household.ID
	}
	return f, nil
}

func (f Filter) Personal() bool {
	return f.HouseholdID == ""
}

// Key names the scope for fan-out of change notifications. Every member of a
// household shares the same key.
func (f Filter) Key() string {
	if f.Personal() {
		return "user:" + f.UserID
	}
	return "household:" + f.HouseholdID
}
