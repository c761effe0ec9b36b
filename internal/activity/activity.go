// Package activity reads the item history of the current scope and turns
// entries into one-line descriptions.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
	"github.com/dukerupert/frostbox/internal/store"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Ledger struct {
	session    *scope.Session
	activities *store.ActivityStore
	logger     *slog.Logger

	mu     sync.Mutex
	recent []model.Activity

	unsubscribe func()
}

func New(session *scope.Session, activities *store.ActivityStore, logger *slog.Logger) *Ledger {
	l := &Ledger{
		session:    session,
		activities: activities,
		logger:     logger.With("component", "activity"),
	}
	l.unsubscribe = session.Subscribe(l.onScopeChange)
	return l
}

func (l *Ledger) Close() {
	l.unsubscribe()
}

func (l *Ledger) onScopeChange(ctx context.Context) error {
	l.mu.Lock()
	l.recent = nil
	l.mu.Unlock()

	_, err := l.List(ctx, DefaultLimit, 0)
	if errors.Is(err, apperr.ErrNotAuthenticated) {
		return nil
	}
	return err
}

// List returns one page of the current scope's history, newest first. The
// first page is kept as Recent.
func (l *Ledger) List(ctx context.Context, limit, offset int) ([]model.Activity, error) {
	f, gen, err := l.session.Snapshot()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := l.activities.List(ctx, f, limit, offset)
	if err != nil {
		return nil, apperr.Normalize(err)
	}

	if offset == 0 {
		l.mu.Lock()
		if l.session.Generation() == gen {
			l.recent = entries
		}
		l.mu.Unlock()
	}
	return entries, nil
}

// Recent is the last loaded first page.
func (l *Ledger) Recent() []model.Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Activity, len(l.recent))
	copy(out, l.recent)
	return out
}

// Describe renders an entry for people, e.g. `Added "Peas" to Door`.
func Describe(a model.Activity) string {
	drawer := a.ItemDrawer
	if drawer == "" {
		drawer = "freezer"
	}

	switch a.Action {
	case model.ActionCreated:
		return fmt.Sprintf("Added \"%s\" to %s", a.ItemName, drawer)
	case model.ActionDeleted:
		return fmt.Sprintf("Removed \"%s\" from %s", a.ItemName, drawer)
	case model.ActionUpdated:
		if c, ok := a.Changes["quantity"]; ok && len(a.Changes) == 1 {
			return fmt.Sprintf("Updated quantity of \"%s\" from %s to %s", a.ItemName, rawText(c.Old), rawText(c.New))
		}
		return fmt.Sprintf("Updated \"%s\"", a.ItemName)
	}
	return fmt.Sprintf("%s \"%s\"", a.Action, a.ItemName)
}

// rawText prints a JSON value the way it reads: strings without quotes,
// everything else as written.
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
