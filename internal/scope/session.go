package scope

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dukerupert/frostbox/internal/identity"
	"github.com/dukerupert/frostbox/internal/model"
)

// Session holds the signed-in user and the selected household for one client.
// Components that cache scoped data subscribe and reload when either changes.
// Subscribers run synchronously, so when Switch returns every cache already
// reflects the new scope.
type Session struct {
	mu          sync.Mutex
	user        *model.User
	household   *model.Household
	generation  uint64
	subscribers map[int]func(ctx context.Context) error
	next        int

	unsubscribe func()
	logger      *slog.Logger
}

func NewSession(p identity.Provider, logger *slog.Logger) *Session {
	s := &Session{
		user:        p.CurrentUser(),
		subscribers: make(map[int]func(ctx context.Context) error),
		logger:      logger,
	}
	s.unsubscribe = p.OnChange(s.onIdentityChange)
	return s
}

// Close detaches the session from its identity provider.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Household returns the selected household, nil in personal scope.
func (s *Session) Household() *model.Household {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.household
}

func (s *Session) Filter() (Filter, error) {
	f, _, err := s.Snapshot()
	return f, err
}

// Snapshot returns the current filter with a generation number that changes
// on every scope change. A reload that started under an older generation must
// discard its result.
func (s *Session) Snapshot() (Filter, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := Resolve(s.user, s.household)
	return f, s.generation, err
}

func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Subscribe registers fn to run after every scope change.
func (s *Session) Subscribe(fn func(ctx context.Context) error) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Switch selects a household (nil for personal scope). It makes no store call
// itself; the reloads it triggers do.
func (s *Session) Switch(ctx context.Context, household *model.Household) error {
	s.mu.Lock()
	if sameHousehold(s.household, household) {
		if household != nil {
			s.household = household
		}
		s.mu.Unlock()
		return nil
	}
	s.household = household
	s.generation++
	s.mu.Unlock()

	return s.notify(ctx)
}

// Clear returns to personal scope.
func (s *Session) Clear(ctx context.Context) error {
	return s.Switch(ctx, nil)
}

// ClearIf returns to personal scope only when householdID is selected.
func (s *Session) ClearIf(ctx context.Context, householdID string) error {
	s.mu.Lock()
	selected := s.household != nil && s.household.ID == householdID
	s.mu.Unlock()
	if !selected {
		return nil
	}
	return s.Clear(ctx)
}

func (s *Session) onIdentityChange(user *model.User) {
	s.mu.Lock()
	s.user = user
	s.household = nil
	s.generation++
	s.mu.Unlock()

	if err := s.notify(context.Background()); err != nil {
		s.logger.Error("reload after identity change", "error", err)
	}
}

func (s *Session) notify(ctx context.Context) error {
	s.mu.Lock()
	fns := make([]func(ctx context.Context) error, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sameHousehold(a, b *model.Household) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}
