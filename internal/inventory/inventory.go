// Package inventory keeps the item list of the current scope. Writes go to the
// store, which decides position conflicts; the local list only mirrors what
// the store accepted.
package inventory

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
	"github.com/dukerupert/frostbox/internal/store"
)

// Draft is an item as entered by a user. Quantity is free text.
type Draft struct {
	Name           string `json:"name"`
	Drawer         string `json:"drawer"`
	Quantity       string `json:"quantity"`
	ExpiryDate     string `json:"expiry_date"`
	Notes          string `json:"notes"`
	Position       *int   `json:"position"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ParseQuantity reads a quantity, falling back to 1 when the text is empty,
// not a number, or below 1.
func ParseQuantity(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (d Draft) validate() (model.ItemDraft, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return model.ItemDraft{}, apperr.Validation("name is required")
	}
	drawer := strings.TrimSpace(d.Drawer)
	if drawer == "" {
		return model.ItemDraft{}, apperr.Validation("please select a drawer")
	}
	if d.Position != nil && *d.Position <= 0 {
		return model.ItemDraft{}, apperr.Validation("position must be a positive number")
	}
	return model.ItemDraft{
		Name:           name,
		Drawer:         drawer,
		Quantity:       ParseQuantity(d.Quantity),
		ExpiryDate:     strings.TrimSpace(d.ExpiryDate),
		Notes:          strings.TrimSpace(d.Notes),
		Position:       d.Position,
		IdempotencyKey: strings.TrimSpace(d.IdempotencyKey),
	}, nil
}

type Service struct {
	session *scope.Session
	items   *store.ItemStore
	logger  *slog.Logger

	mu      sync.Mutex
	cache   []model.Item
	loading bool

	unsubscribe func()
}

// New builds the service and subscribes it to scope changes of session.
func New(session *scope.Session, items *store.ItemStore, logger *slog.Logger) *Service {
	s := &Service{
		session: session,
		items:   items,
		logger:  logger.With("component", "inventory"),
	}
	s.unsubscribe = session.Subscribe(s.onScopeChange)
	return s
}

func (s *Service) Close() {
	s.unsubscribe()
}

// onScopeChange drops the old scope's items before reloading, so nothing from
// the previous scope is visible while the reload runs.
func (s *Service) onScopeChange(ctx context.Context) error {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()

	_, err := s.reload(ctx)
	if errors.Is(err, apperr.ErrNotAuthenticated) {
		return nil
	}
	return err
}

func (s *Service) reload(ctx context.Context) ([]model.Item, error) {
	f, gen, err := s.session.Snapshot()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	items, err := s.items.List(ctx, f)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		return nil, apperr.Normalize(err)
	}
	// The scope moved on while this list was in flight.
	if s.session.Generation() != gen {
		return nil, apperr.Conflict("scope changed while loading")
	}
	s.cache = items
	return cloneItems(items), nil
}

// List reloads the current scope from the store, newest first.
func (s *Service) List(ctx context.Context) ([]model.Item, error) {
	return s.reload(ctx)
}

// Items returns the cached list without a store call.
func (s *Service) Items() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.cache)
}

func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Add validates the draft and inserts it. A taken position comes back as a
// position_conflict error carrying the position.
func (s *Service) Add(ctx context.Context, d Draft) (*model.Item, error) {
	draft, err := d.validate()
	if err != nil {
		return nil, err
	}
	f, gen, err := s.session.Snapshot()
	if err != nil {
		return nil, err
	}

	item, err := s.items.Create(ctx, f, draft)
	if err != nil {
		return nil, apperr.Normalize(err)
	}

	s.mu.Lock()
	if s.session.Generation() == gen && !containsItem(s.cache, item.ID) {
		s.cache = append([]model.Item{*item}, s.cache...)
	}
	s.mu.Unlock()

	s.logger.Debug("item added", "item_id", item.ID, "scope", f.Key())
	return item, nil
}

func (s *Service) Update(ctx context.Context, id string, patch model.ItemPatch) (*model.Item, error) {
	f, gen, err := s.session.Snapshot()
	if err != nil {
		return nil, err
	}

	item, err := s.items.Update(ctx, f, id, patch)
	if err != nil {
		return nil, apperr.Normalize(err)
	}

	s.mu.Lock()
	if s.session.Generation() == gen {
		for i := range s.cache {
			if s.cache[i].ID == id {
				s.cache[i] = *item
				break
			}
		}
	}
	s.mu.Unlock()
	return item, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	f, gen, err := s.session.Snapshot()
	if err != nil {
		return err
	}

	if err := s.items.Delete(ctx, f, id); err != nil {
		return apperr.Normalize(err)
	}

	s.mu.Lock()
	if s.session.Generation() == gen {
		for i := range s.cache {
			if s.cache[i].ID == id {
				s.cache = append(s.cache[:i], s.cache[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	return nil
}

// PositionAvailable asks the store whether position is free in the current
// scope, ignoring excludeID. Use it for form hints only.
func (s *Service) PositionAvailable(ctx context.Context, position int, excludeID string) (bool, error) {
	f, err := s.session.Filter()
	if err != nil {
		return false, err
	}
	ok, err := s.items.PositionAvailable(ctx, f, position, excludeID)
	if err != nil {
		return false, apperr.Normalize(err)
	}
	return ok, nil
}

func cloneItems(items []model.Item) []model.Item {
	if items == nil {
		return []model.Item{}
	}
	out := make([]model.Item, len(items))
	copy(out, items)
	return out
}

func containsItem(items []model.Item, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Expiring reloads the scope's items and returns those expiring soon.
func (s *Service) Expiring(ctx context.Context, today time.Time) ([]ExpiringItem, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := Expiring(items, today, s.logger)
	if out == nil {
		out = []ExpiringItem{}
	}
	return out, nil
}
