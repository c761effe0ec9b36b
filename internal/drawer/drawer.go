// Package drawer keeps the ordered drawer list of the current scope.
package drawer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
	"github.com/dukerupert/frostbox/internal/store"
)

type Registry struct {
	session *scope.Session
	drawers *store.DrawerStore
	logger  *slog.Logger

	mu    sync.Mutex
	cache []model.Drawer

	unsubscribe func()
}

func New(session *scope.Session, drawers *store.DrawerStore, logger *slog.Logger) *Registry {
	r := &Registry{
		session: session,
		drawers: drawers,
		logger:  logger.With("component", "drawer"),
	}
	r.unsubscribe = session.Subscribe(r.onScopeChange)
	return r
}

func (r *Registry) Close() {
	r.unsubscribe()
}

func (r *Registry) onScopeChange(ctx context.Context) error {
	r.mu.Lock()
	r.cache = nil
	r.mu.Unlock()

	_, err := r.List(ctx)
	if errors.Is(err, apperr.ErrNotAuthenticated) {
		return nil
	}
	return err
}

// List reloads the drawers of the current scope in display order.
func (r *Registry) List(ctx context.Context) ([]model.Drawer, error) {
	f, gen, err := r.session.Snapshot()
	if err != nil {
		return nil, err
	}
	drawers, err := r.drawers.List(ctx, f)
	if err != nil {
		return nil, apperr.Normalize(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.Generation() != gen {
		return nil, apperr.Conflict("scope changed while loading")
	}
	r.cache = drawers
	return cloneDrawers(drawers), nil
}

// Drawers returns the cached list without a store call.
func (r *Registry) Drawers() []model.Drawer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneDrawers(r.cache)
}

// Add creates a drawer. Without a sort order it is appended.
func (r *Registry) Add(ctx context.Context, draft model.DrawerDraft) (*model.Drawer, error) {
	f, gen, err := r.session.Snapshot()
	if err != nil {
		return nil, err
	}
	d, err := r.drawers.Create(ctx, f, draft)
	if err != nil {
		return nil, apperr.Normalize(err)
	}

	r.mu.Lock()
	if r.session.Generation() == gen {
		r.cache = append(r.cache, *d)
		sortDrawers(r.cache)
	}
	r.mu.Unlock()
	return d, nil
}

func (r *Registry) Update(ctx context.Context, id string, patch model.DrawerPatch) (*model.Drawer, error) {
	f, gen, err := r.session.Snapshot()
	if err != nil {
		return nil, err
	}
	d, err := r.drawers.Update(ctx, f, id, patch)
	if err != nil {
		return nil, apperr.Normalize(err)
	}

	r.mu.Lock()
	if r.session.Generation() == gen {
		for i := range r.cache {
			if r.cache[i].ID == id {
				r.cache[i] = *d
				break
			}
		}
	}
	r.mu.Unlock()
	return d, nil
}

// Delete removes a drawer. Items filed under its name keep the label.
func (r *Registry) Delete(ctx context.Context, id string) error {
	f, gen, err := r.session.Snapshot()
	if err != nil {
		return err
	}
	if err := r.drawers.Delete(ctx, f, id); err != nil {
		return apperr.Normalize(err)
	}

	r.mu.Lock()
	if r.session.Generation() == gen {
		for i := range r.cache {
			if r.cache[i].ID == id {
				r.cache = append(r.cache[:i], r.cache[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	return nil
}

// Reorder persists ids as the new order, 0-indexed. The local order changes
// only after the store accepted the whole reorder.
func (r *Registry) Reorder(ctx context.Context, ids []string) error {
	f, gen, err := r.session.Snapshot()
	if err != nil {
		return err
	}
	if err := r.drawers.Reorder(ctx, f, ids); err != nil {
		r.logger.Warn("reorder rejected", "scope", f.Key(), "error", err)
		return apperr.Normalize(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.Generation() != gen {
		return nil
	}
	position := make(map[string]int, len(ids))
	for i, id := range ids {
		position[id] = i
	}
	for i := range r.cache {
		if p, ok := position[r.cache[i].ID]; ok {
			r.cache[i].SortOrder = p
		}
	}
	sortDrawers(r.cache)
	return nil
}

func sortDrawers(ds []model.Drawer) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].SortOrder < ds[j].SortOrder
	})
}

func cloneDrawers(ds []model.Drawer) []model.Drawer {
	if ds == nil {
		return []model.Drawer{}
	}
	out := make([]model.Drawer, len(ds))
	copy(out, ds)
	return out
}
