package chat

import (
	"errors"
	"math/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcpchat/internal/app/audit"
)

type dispatcherFixture struct {
	registry   *Registry
	dispatcher *Dispatcher
	recorder   *audit.MemoryRecorder
	alice      *User // moderator
	bob        *User
	carol      *User
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	r := NewRegistry()
	rec := &audit.MemoryRecorder{}
	d := NewDispatcher(r,
		WithRand(rand.New(rand.NewSource(7))),
		WithRecorder(rec),
		WithTaunts([]string{"boo"}),
	)

	users := admitUsers(t, r, "alice", "bob", "carol")
	drainAll(users...)

	return &dispatcherFixture{
		registry:   r,
		dispatcher: d,
		recorder:   rec,
		alice:      users[0],
		bob:        users[1],
		carol:      users[2],
	}
}

func (f *dispatcherFixture) run(u *User, line string) Signal {
	fields := strings.Fields(line)
	return f.dispatcher.Execute(u, fields[0], fields[1:])
}

func TestSignalString(t *testing.T) {
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "terminate", Terminate.String())
}

func TestUnknownCommand(t *testing.T) {
	f := newDispatcherFixture(t)

	sig := f.run(f.bob, "/dance")
	assert.Equal(t, Continue, sig)
	assert.Equal(t, []string{" >> '/dance' is not a valid command."}, drain(f.bob))
	assert.Empty(t, drain(f.alice))
}

func TestNick(t *testing.T) {
	f := newDispatcherFixture(t)

	assert.Equal(t, Continue, f.run(f.bob, "/nick Cool Guy"))
	for _, u := range []*User{f.alice, f.bob, f.carol} {
		assert.Equal(t, []string{" >> bob has changed name to Cool Guy."}, drain(u))
	}

	f.run(f.bob, "/nick not-ok")
	assert.Equal(t, []string{" >> Usernames must be alphanumeric."}, drain(f.bob))

	f.run(f.bob, "/nick Cool Guy")
	assert.Equal(t, []string{" >> You are already named Cool Guy."}, drain(f.bob))
	assert.Empty(t, drain(f.alice))

	f.run(f.bob, "/nick ALICE")
	assert.Equal(t, []string{" >> Sorry, someone is already named 'ALICE'."}, drain(f.bob))
	assert.Empty(t, drain(f.alice))

	events := f.recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionRename, events[0].Action)
	assert.Equal(t, "Cool Guy", events[0].Target)
	assert.Equal(t, "bob", events[0].Detail)
}

func TestExit(t *testing.T) {
	f := newDispatcherFixture(t)

	assert.Equal(t, Terminate, f.run(f.bob, "/exit"))
	assert.Equal(t, []string{" >> bob has left the chat."}, drain(f.alice))
	assert.Equal(t, []string{" >> bob has left the chat."}, drain(f.bob))
	assert.False(t, f.registry.Contains(f.bob))

	f.run(f.alice, "/kick bob")
	assert.Equal(t, []string{" >> Sorry, no one is named 'bob'."}, drain(f.alice))
	assert.Empty(t, drain(f.carol))
}

func TestExitAfterKickIsSilent(t *testing.T) {
	f := newDispatcherFixture(t)

	f.run(f.alice, "/kick bob")
	drainAll(f.alice, f.bob, f.carol)

	assert.Equal(t, Terminate, f.run(f.bob, "/exit"))
	assert.Empty(t, drain(f.carol))

	for _, e := range f.recorder.Events() {
		assert.NotEqual(t, audit.ActionExit, e.Action)
	}
}

func TestRoll(t *testing.T) {
	f := newDispatcherFixture(t)

	f.run(f.bob, "/roll 2D6 1d20")
	pattern := regexp.MustCompile(`^ >> bob just rolled 2d6 1d20 and got: (\d+) (\d+) (\d+)$`)
	for _, u := range []*User{f.alice, f.bob, f.carol} {
		lines := drain(u)
		require.Len(t, lines, 1)
		assert.Regexp(t, pattern, lines[0])
	}
}

func TestRollRejectsBadSpecs(t *testing.T) {
	f := newDispatcherFixture(t)
	want := " >> Dice must look like 2d6 (up to 100 dice with up to 1000 sides)."

	for _, line := range []string{"/roll", "/roll 2d0", "/roll abc", "/roll 101d6", "/roll 1d6 1d1001"} {
		f.run(f.bob, line)
		assert.Equal(t, []string{want}, drain(f.bob), line)
		assert.Empty(t, drain(f.alice), line)
	}
}

func TestBlockAndUnblock(t *testing.T) {
	f := newDispatcherFixture(t)

	f.run(f.alice, "/block BOB")
	assert.Equal(t, []string{" >> alice has blocked bob."}, drain(f.carol))
	drainAll(f.alice, f.bob)

	f.run(f.alice, "/block bob")
	assert.Equal(t, []string{" >> You have already blocked bob."}, drain(f.alice))

	f.run(f.alice, "/block alice")
	assert.Equal(t, []string{" >> You cannot block yourself."}, drain(f.alice))

	f.run(f.alice, "/block nobody")
	assert.Equal(t, []string{" >> Sorry, no one is named 'nobody'."}, drain(f.alice))

	f.run(f.alice, "/block")
	assert.Equal(t, []string{" >> Usage: /block <name>"}, drain(f.alice))

	f.run(f.alice, "/unblock bob")
	assert.Equal(t, []string{" >> alice has unblocked bob."}, drain(f.carol))
	drainAll(f.alice, f.bob)

	f.run(f.alice, "/unblock bob")
	assert.Equal(t, []string{" >> You have not blocked bob."}, drain(f.alice))
}

func TestBlockDoesNotFilterWhispers(t *testing.T) {
	f := newDispatcherFixture(t)

	f.run(f.alice, "/block bob")
	drainAll(f.alice, f.bob, f.carol)

	f.run(f.bob, "/dm alice psst")
	assert.Equal(t, []string{"bob whispers: psst"}, drain(f.alice))
}

func TestHelp(t *testing.T) {
	f := newDispatcherFixture(t)

	f.run(f.bob, "/help")
	assert.Equal(t, []string{
		" >> The commands are: /block, /dm, /exit, /harass, /help, /kick, /mod, /nick, /roll, /unblock, /userlist",
		` >> Type "/help {command name}" for help on a command.`,
	}, drain(f.bob))

	f.run(f.bob, "/help roll")
	assert.Equal(t, []string{
		" >> Usage: /roll <NdS> [NdS...]",
		" >> Rolls some dice!",
		" >> Example: /roll 1d20 2d4",
	}, drain(f.bob))

	f.run(f.bob, "/help /exit")
	assert.Equal(t, []string{" >> Usage: /exit", " >> Exits the chat."}, drain(f.bob))

	f.run(f.bob, "/help fly")
	assert.Equal(t, []string{" >> There is no command named '/fly'."}, drain(f.bob))
}

func TestDirectMessage(t *testing.T) {
	f := newDispatcherFixture(t)
	_, err := f.registry.Rename(f.carol, "Silly Goose")
	require.NoError(t, err)
	drainAll(f.alice, f.bob, f.carol)

	f.run(f.bob, "/dm Silly Goose // you're so silly!")
	assert.Equal(t, []string{"bob whispers: you're so silly!"}, drain(f.carol))
	assert.Empty(t, drain(f.bob))
	assert.Empty(t, drain(f.alice))

	f.run(f.bob, "/dm alice hi there")
	assert.Equal(t, []string{"bob whispers: hi there"}, drain(f.alice))

	f.run(f.bob, "/dm alice")
	assert.Equal(t, []string{" >> Usage: " + f.dispatcher.commands["/dm"].Usage}, drain(f.bob))

	f.run(f.bob, "/dm nobody hi")
	assert.Equal(t, []string{" >> Sorry, no one is named 'nobody'."}, drain(f.bob))
}

func TestHarass(t *testing.T) {
	f := newDispatcherFixture(t)

	f.run(f.bob, "/harass alice")
	assert.Equal(t, []string{" >> bob whispers: boo"}, drain(f.alice))
	assert.Equal(t, []string{" >> You whisper to alice: boo"}, drain(f.bob))
	assert.Empty(t, drain(f.carol))
}

func TestKick(t *testing.T) {
	f := newDispatcherFixture(t)

	f.run(f.bob, "/kick carol")
	assert.Equal(t, []string{" >> You are not a moderator."}, drain(f.bob))
	assert.False(t, f.carol.isKicked())

	f.run(f.alice, "/kick nobody")
	assert.Equal(t, []string{" >> Sorry, no one is named 'nobody'."}, drain(f.alice))

	f.run(f.alice, "/kick Carol")
	for _, u := range []*User{f.alice, f.bob, f.carol} {
		assert.Equal(t, []string{" >> alice has kicked carol from chat."}, drain(u))
	}
	assert.True(t, f.carol.isKicked())

	f.run(f.alice, "/kick carol")
	assert.Equal(t, []string{" >> Sorry, no one is named 'carol'."}, drain(f.alice))
	assert.Empty(t, drain(f.bob))

	events := f.recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionKick, events[0].Action)
	assert.Equal(t, "alice", events[0].Actor)
	assert.Equal(t, "carol", events[0].Target)
}

func TestMod(t *testing.T) {
	f := newDispatcherFixture(t)

	f.run(f.bob, "/mod bob")
	assert.Equal(t, []string{" >> You are not a moderator."}, drain(f.bob))

	f.run(f.alice, "/mod bob")
	assert.Equal(t, []string{" >> alice has granted moderator privileges to bob."}, drain(f.carol))
	assert.True(t, f.bob.IsModerator())
	drainAll(f.alice, f.bob)

	f.run(f.bob, "/kick carol")
	assert.True(t, f.carol.isKicked())
}

func TestUserlist(t *testing.T) {
	f := newDispatcherFixture(t)
	_, err := f.registry.Rename(f.carol, "Aaron")
	require.NoError(t, err)
	drainAll(f.alice, f.bob, f.carol)

	f.run(f.bob, "/userlist")
	assert.Equal(t, []string{" >> Online users: Aaron, alice, bob"}, drain(f.bob))
	assert.Empty(t, drain(f.alice))
}

func TestExecuteRecoversFromHandlerFaults(t *testing.T) {
	f := newDispatcherFixture(t)

	f.dispatcher.commands["/boom"] = Command{Name: "/boom", Run: func(*User, []string) (Signal, error) {
		panic("boom")
	}}
	f.dispatcher.commands["/fail"] = Command{Name: "/fail", Run: func(*User, []string) (Signal, error) {
		return Terminate, errors.New("disk on fire")
	}}

	assert.Equal(t, Continue, f.run(f.bob, "/boom"))
	assert.Equal(t, []string{" >> Sorry, something went wrong."}, drain(f.bob))

	assert.Equal(t, Continue, f.run(f.bob, "/fail"))
	assert.Equal(t, []string{" >> Sorry, something went wrong."}, drain(f.bob))
}

func TestDispatcherDefaultsSeedRand(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	require.NotNil(t, d.rng)
	assert.Len(t, d.Names(), 11)

	cmd, ok := d.Lookup("/nick")
	require.True(t, ok)
	assert.Equal(t, "/nick", cmd.Name)
}
