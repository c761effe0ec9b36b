// Package identity supplies the signed-in user. Credentials and sessions live
// with whatever authenticates the user; this package only carries the result.
package identity

import (
	"sync"

	"github.com/dukerupert/frostbox/internal/model"
)

// Provider reports the current user and notifies on login and logout.
type Provider interface {
	CurrentUser() *model.User
	OnChange(fn func(*model.User)) (unsubscribe func())
}

// Local is a Provider whose user is set by the embedding application.
type Local struct {
	mu        sync.Mutex
	user      *model.User
	listeners map[int]func(*model.User)
	next      int
}

func NewLocal(user *model.User) *Local {
	return &Local{
		user:      user,
		listeners: make(map[int]func(*model.User)),
	}
}

func (l *Local) CurrentUser() *model.User {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.user
}

// SetUser replaces the current user (nil signs out) and notifies listeners.
func (l *Local) SetUser(user *model.User) {
	l.mu.Lock()
	l.user = user
	fns := make([]func(*model.User), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

func (l *Local) OnChange(fn func(*model.User)) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}
