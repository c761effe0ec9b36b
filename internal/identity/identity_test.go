package identity

import (
	"testing"

	"github.com/dukerupert/frostbox/internal/model"
)

func TestLocalSetUserNotifies(t *testing.T) {
	l := NewLocal(nil)
	if l.CurrentUser() != nil {
		t.Fatal("expected no user")
	}

	var got []*model.User
	unsubscribe := l.OnChange(func(u *model.User) { got = append(got, u) })

	alice := &model.User{ID: "u1", Email: "alice@example.com"}
	l.SetUser(alice)
	l.SetUser(nil)

	if len(got) != 2 {
		t.Fatalf("notifications = %d, want 2", len(got))
	}
	if got[0] != alice || got[1] != nil {
		t.Errorf("unexpected notification sequence: %v", got)
	}

	unsubscribe()
	l.SetUser(alice)
	if len(got) != 2 {
		t.Errorf("listener called after unsubscribe")
	}
	if l.CurrentUser() != alice {
		t.Errorf("current user = %v, want alice", l.CurrentUser())
	}
}
