// Package household manages the households the signed-in user belongs to and
// which one is selected.
package household

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
	"github.com/dukerupert/frostbox/internal/store"
)

type Directory struct {
	session    *scope.Session
	households *store.HouseholdStore
	logger     *slog.Logger

	mu       sync.Mutex
	cache    []model.Household
	cachedBy string

	unsubscribe func()
}

func New(session *scope.Session, households *store.HouseholdStore, logger *slog.Logger) *Directory {
	d := &Directory{
		session:    session,
		households: households,
		logger:     logger.With("component", "household"),
	}
	d.unsubscribe = session.Subscribe(d.onScopeChange)
	return d
}

func (d *Directory) Close() {
	d.unsubscribe()
}

// onScopeChange reloads only when the signed-in user changed; switching
// households does not change the list.
func (d *Directory) onScopeChange(ctx context.Context) error {
	user := d.session.User()

	d.mu.Lock()
	if user == nil {
		d.cache = nil
		d.cachedBy = ""
		d.mu.Unlock()
		return nil
	}
	same := d.cachedBy == user.ID
	d.mu.Unlock()

	if same {
		return nil
	}
	_, err := d.List(ctx)
	return err
}

func (d *Directory) currentUser() (*model.User, error) {
	user := d.session.User()
	if user == nil {
		return nil, apperr.NotAuthenticated()
	}
	return user, nil
}

// List reloads the user's households with the user's role in each.
func (d *Directory) List(ctx context.Context) ([]model.Household, error) {
	user, err := d.currentUser()
	if err != nil {
		return nil, err
	}
	households, err := d.households.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, apperr.Normalize(err)
	}

	d.mu.Lock()
	d.cache = households
	d.cachedBy = user.ID
	d.mu.Unlock()
	return cloneHouseholds(households), nil
}

// Households returns the cached list without a store call.
func (d *Directory) Households() []model.Household {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneHouseholds(d.cache)
}

// Create makes a household owned by the caller. The caller usually switches
// to it next.
func (d *Directory) Create(ctx context.Context, name string) (*model.Household, error) {
	user, err := d.currentUser()
	if err != nil {
		return nil, err
	}
	h, err := d.households.CreateWithOwner(ctx, user.ID, name)
	if err != nil {
		return nil, apperr.Normalize(err)
	}
	d.logger.Info("household created", "household_id", h.ID, "user_id", user.ID)

	if _, err := d.List(ctx); err != nil {
		d.logger.Warn("reload households", "error", err)
	}
	return h, nil
}

func (d *Directory) Rename(ctx context.Context, id, name string) (*model.Household, error) {
	user, err := d.currentUser()
	if err != nil {
		return nil, err
	}
	h, err := d.households.Rename(ctx, user.ID, id, name)
	if err != nil {
		return nil, apperr.Normalize(err)
	}

	d.mu.Lock()
	for i := range d.cache {
		if d.cache[i].ID == id {
			d.cache[i] = *h
		}
	}
	d.mu.Unlock()

	// Refresh the selected copy; same id, so no reload is triggered.
	if sel := d.session.Household(); sel != nil && sel.ID == id {
		if err := d.session.Switch(ctx, h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Delete destroys the household with everything in it. Owner only.
func (d *Directory) Delete(ctx context.Context, id string) error {
	user, err := d.currentUser()
	if err != nil {
		return err
	}
	if err := d.households.Delete(ctx, user.ID, id); err != nil {
		return apperr.Normalize(err)
	}
	d.logger.Info("household deleted", "household_id", id, "user_id", user.ID)

	d.drop(id)
	return d.session.ClearIf(ctx, id)
}

// Switch selects h (nil for the personal space). It is local: the store is
// only queried by the reloads it triggers.
func (d *Directory) Switch(ctx context.Context, h *model.Household) error {
	return d.session.Switch(ctx, h)
}

// Leave drops the caller's membership. When the household is selected the
// selection is cleared before the list reloads.
func (d *Directory) Leave(ctx context.Context, id string) error {
	user, err := d.currentUser()
	if err != nil {
		return err
	}
	if err := d.households.Leave(ctx, user.ID, id); err != nil {
		return apperr.Normalize(err)
	}

	d.drop(id)
	if err := d.session.ClearIf(ctx, id); err != nil {
		return err
	}
	if _, err := d.List(ctx); err != nil {
		d.logger.Warn("reload households", "error", err)
	}
	return nil
}

func (d *Directory) RemoveMember(ctx context.Context, memberID string) error {
	user, err := d.currentUser()
	if err != nil {
		return err
	}
	return apperr.Normalize(d.households.RemoveMember(ctx, user.ID, memberID))
}

func (d *Directory) SetMemberRole(ctx context.Context, memberID, role string) (*model.HouseholdMember, error) {
	user, err := d.currentUser()
	if err != nil {
		return nil, err
	}
	m, err := d.households.SetMemberRole(ctx, user.ID, memberID, role)
	if err != nil {
		return nil, apperr.Normalize(err)
	}
	if m.UserID == user.ID {
		if _, err := d.List(ctx); err != nil {
			d.logger.Warn("reload households", "error", err)
		}
	}
	return m, nil
}

func (d *Directory) ListMembers(ctx context.Context, householdID string) ([]model.HouseholdMember, error) {
	user, err := d.currentUser()
	if err != nil {
		return nil, err
	}
	members, err := d.households.ListMembers(ctx, user.ID, householdID)
	if err != nil {
		return nil, apperr.Normalize(err)
	}
	return members, nil
}

func (d *Directory) drop(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.cache {
		if d.cache[i].ID == id {
			d.cache = append(d.cache[:i], d.cache[i+1:]...)
			return
		}
	}
}

func cloneHouseholds(hs []model.Household) []model.Household {
	if hs == nil {
		return []model.Household{}
	}
	out := make([]model.Household, len(hs))
	copy(out, hs)
	return out
}
