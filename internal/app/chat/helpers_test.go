package chat

import (
	"io"
	"os"
	"testing"

	"tcpchat/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// newTestUser returns a user with no connection; its queued lines are read with drain.
func newTestUser(name string) *User {
	return newUser("session-"+name, name, nil)
}

// admitUsers admits a user for each name, the first becoming moderator.
func admitUsers(t *testing.T, r *Registry, names ...string) []*User {
	t.Helper()

	users := make([]*User, 0, len(names))
	for _, name := range names {
		u := newTestUser(name)
		if err := r.Admit(u); err != nil {
			t.Fatalf("admit %s: %v", name, err)
		}
		users = append(users, u)
	}
	return users
}

// drain returns and discards every line queued for u.
func drain(u *User) []string {
	var lines []string
	for {
		select {
		case line := <-u.send:
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

// drainAll empties the queues of every user.
func drainAll(users ...*User) {
	for _, u := range users {
		drain(u)
	}
}
