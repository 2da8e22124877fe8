package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcpchat/internal/pkg/errs"
)

// assertConsistent checks that members and byName describe the same users.
func assertConsistent(t *testing.T, r *Registry) {
	t.Helper()

	r.mu.RLock()
	defer r.mu.RUnlock()

	require.Len(t, r.byName, len(r.members))
	for m := range r.members {
		assert.Same(t, m, r.byName[foldName(m.Nickname())], "member %q missing from index", m.Nickname())
	}
}

func TestAdmitFirstUserBecomesModerator(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob")

	assert.True(t, users[0].IsModerator())
	assert.False(t, users[1].IsModerator())
	assert.Equal(t, 2, r.Len())
	assertConsistent(t, r)
}

func TestAdmitModeratorAfterRoomEmpties(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob")

	r.Remove(users[0])
	r.Remove(users[1])

	carol := admitUsers(t, r, "carol")[0]
	assert.True(t, carol.IsModerator())
}

func TestAdmitRejectsTakenNickname(t *testing.T) {
	r := NewRegistry()
	admitUsers(t, r, "Alice")

	err := r.Admit(newTestUser("aLICE"))
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.ErrNicknameTaken))
	assert.Equal(t, 1, r.Len())
	assertConsistent(t, r)
}

func TestRemoveIsIdempotentAndPurgesBlocks(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob")
	alice, bob := users[0], users[1]

	require.NoError(t, r.Block(alice, bob))
	require.True(t, alice.HasBlocked(bob))

	r.Remove(bob)
	r.Remove(bob)

	assert.False(t, alice.HasBlocked(bob))
	assert.False(t, r.Contains(bob))
	_, ok := r.Lookup("bob")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
	assertConsistent(t, r)
}

func TestRename(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob")
	alice := users[0]

	tests := []struct {
		name    string
		newName string
		code    int
	}{
		{name: "empty", newName: "   ", code: errs.ErrInvalidNickname},
		{name: "punctuation", newName: "al!ce", code: errs.ErrInvalidNickname},
		{name: "taken", newName: "BOB", code: errs.ErrNicknameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Rename(alice, tt.newName)
			require.Error(t, err)
			assert.True(t, errs.HasCode(err, tt.code), "got %v", err)
			assert.Equal(t, "alice", alice.Nickname())
		})
	}

	old, err := r.Rename(alice, "Cool  Guy")
	require.NoError(t, err)
	assert.Equal(t, "alice", old)
	assert.Equal(t, "Cool Guy", alice.Nickname())

	found, ok := r.Lookup("cool guy")
	require.True(t, ok)
	assert.Same(t, alice, found)
	_, ok = r.Lookup("alice")
	assert.False(t, ok)
	assertConsistent(t, r)
}

func TestRenameToOwnCaseVariant(t *testing.T) {
	r := NewRegistry()
	alice := admitUsers(t, r, "alice")[0]

	_, err := r.Rename(alice, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "ALICE", alice.Nickname())
	assertConsistent(t, r)
}

func TestValidNicknameAcceptsUnicodeLettersAndDigits(t *testing.T) {
	assert.True(t, ValidNickname("Zoë 42"))
	assert.True(t, ValidNickname("東京"))
	assert.False(t, ValidNickname(""))
	assert.False(t, ValidNickname("a_b"))
	assert.False(t, ValidNickname("127.0.0.1:5000"))
}

func TestConcurrentRenamesToSameNameExactlyOneWins(t *testing.T) {
	for round := 0; round < 20; round++ {
		r := NewRegistry()
		users := admitUsers(t, r, "u1", "u2", "u3", "u4")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for _, u := range users {
			wg.Add(1)
			go func(u *User) {
				defer wg.Done()
				if _, err := r.Rename(u, "Highlander"); err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				} else {
					assert.True(t, errs.HasCode(err, errs.ErrNicknameTaken))
				}
			}(u)
		}
		wg.Wait()

		assert.Equal(t, 1, winners, "round %d", round)
		assertConsistent(t, r)
	}
}

func TestConcurrentAdmitAndRemoveStayConsistent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := newTestUser(fmt.Sprintf("user%d", i))
			if err := r.Admit(u); err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			if i%2 == 0 {
				r.Remove(u)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.Len())
	assertConsistent(t, r)
}

func TestBlockIsDirected(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob", "carol")
	alice, bob, carol := users[0], users[1], users[2]

	require.NoError(t, r.Block(alice, bob))

	err := r.Block(alice, bob)
	assert.True(t, errs.HasCode(err, errs.ErrAlreadyBlocked))
	err = r.Block(alice, alice)
	assert.True(t, errs.HasCode(err, errs.ErrSelfBlock))

	drainAll(users...)
	r.BroadcastFrom(bob, "hi")
	r.BroadcastFrom(alice, "hello")

	assert.Empty(t, drain(alice))
	assert.Equal(t, []string{"alice: hello"}, drain(bob))
	assert.Equal(t, []string{"bob: hi", "alice: hello"}, drain(carol))

	require.NoError(t, r.Unblock(alice, bob))
	err = r.Unblock(alice, bob)
	assert.True(t, errs.HasCode(err, errs.ErrNotBlocked))

	r.BroadcastFrom(bob, "back")
	assert.Equal(t, []string{"bob: back"}, drain(alice))
}

func TestBroadcastSystemReachesEveryone(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob")
	drainAll(users...)

	r.BroadcastSystem("hello all")

	for _, u := range users {
		assert.Equal(t, []string{" >> hello all"}, drain(u))
	}
}

func TestNicknamesSortedCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	admitUsers(t, r, "charlie", "Bob", "alice", "Dave")

	assert.Equal(t, []string{"alice", "Bob", "charlie", "Dave"}, r.Nicknames())

	roster := r.Snapshot()
	require.Len(t, roster, 4)
	assert.Equal(t, "alice", roster[0].Nickname)
	assert.False(t, roster[0].Moderator)
	assert.True(t, roster[2].Moderator, "charlie was admitted first")
}

func TestKickAndGrantRequireMembership(t *testing.T) {
	r := NewRegistry()
	alice := admitUsers(t, r, "alice")[0]
	ghost := newTestUser("ghost")

	assert.True(t, errs.HasCode(r.Kick(ghost, "ghost kicked"), errs.ErrUserNotFound))
	assert.True(t, errs.HasCode(r.GrantModerator(ghost), errs.ErrUserNotFound))

	require.NoError(t, r.Kick(alice, "alice kicked"))
	select {
	case <-alice.Kicked():
	default:
		t.Fatal("kick signal not set")
	}
}

func TestKickTwiceNotifiesOnce(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob", "carol")
	drainAll(users...)

	require.NoError(t, r.Kick(users[1], "alice has kicked bob from chat."))
	err := r.Kick(users[1], "alice has kicked bob from chat.")
	assert.True(t, errs.HasCode(err, errs.ErrUserNotFound))

	for _, u := range users {
		assert.Equal(t, []string{" >> alice has kicked bob from chat."}, drain(u))
	}
}

func TestConcurrentKicksNotifyOnce(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob", "carol")
	drainAll(users...)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Kick(users[1], "bob was kicked.")
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{" >> bob was kicked."}, drain(users[2]))
}

func TestLeaveAnnouncesAndRemoves(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob")
	alice, bob := users[0], users[1]
	drainAll(users...)

	assert.True(t, r.Leave(bob, "bob has left the chat."))
	assert.Equal(t, []string{" >> bob has left the chat."}, drain(alice))
	assert.Equal(t, []string{" >> bob has left the chat."}, drain(bob))
	assert.False(t, r.Contains(bob))

	assert.False(t, r.Leave(bob, "bob has left the chat."))
	assert.True(t, errs.HasCode(r.Kick(bob, "kicked"), errs.ErrUserNotFound))
	assert.Empty(t, drain(alice))
	assertConsistent(t, r)
}

func TestLeaveAfterKickIsSilent(t *testing.T) {
	r := NewRegistry()
	users := admitUsers(t, r, "alice", "bob")
	alice, bob := users[0], users[1]

	require.NoError(t, r.Kick(bob, "alice has kicked bob from chat."))
	drainAll(users...)

	assert.False(t, r.Leave(bob, "bob has disconnected."))
	assert.False(t, r.Contains(bob))
	assert.Empty(t, drain(alice))
	assertConsistent(t, r)
}

func TestRenameToSameNameIsNoop(t *testing.T) {
	r := NewRegistry()
	alice := admitUsers(t, r, "alice")[0]

	old, err := r.Rename(alice, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", old)
	assert.Equal(t, "alice", alice.Nickname())
	assertConsistent(t, r)
}
