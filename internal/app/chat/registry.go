/*
Package chat contains the core of the chat server: the shared registry of connected users,
the per-connection session loop, and the slash-command dispatcher.

This file defines the Registry, the authoritative set of connected users and the
nickname index. Every mutation, including changes to a user's moderator flag and
block set, happens under the registry lock. Membership and the index always agree.
Nicknames are compared case-insensitively using Unicode case folding.
*/
package chat

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"tcpchat/internal/app/user"
	"tcpchat/internal/pkg/errs"
	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/pkg/metrics"
)

// Registry holds every admitted user.
type Registry struct {
	// mu serializes all registry mutations.
	mu sync.RWMutex

	// members is the set of admitted users.
	members map[*User]struct{}

	// byName maps the folded nickname to its user.
	byName map[string]*User

	// structured logger with registry context.
	logger zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[*User]struct{}),
		byName:  make(map[string]*User),
		logger:  logx.Component("registry"),
	}
}

// foldName is the registry key for a nickname. A cases.Caser is stateful, so one is
// built per call.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// ValidNickname reports whether name is non-empty and every space-delimited word in it
// consists only of letters and digits.
func ValidNickname(name string) bool {
	words := strings.Fields(name)
	if len(words) == 0 {
		return false
	}

	for _, word := range words {
		for _, r := range word {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

// Admit adds u under its current nickname. The first user admitted into an empty
// registry becomes a moderator.
func (r *Registry) Admit(u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nickname := u.Nickname()
	key := foldName(nickname)

	if _, ok := r.members[u]; ok {
		return errs.NewError(errs.ErrNicknameTaken, nickname)
	}
	if _, ok := r.byName[key]; ok {
		return errs.NewError(errs.ErrNicknameTaken, nickname)
	}

	if len(r.members) == 0 {
		u.mu.Lock()
		u.moderator = true
		u.mu.Unlock()
	}

	r.members[u] = struct{}{}
	r.byName[key] = u
	metrics.ConnectedUsers.Set(float64(len(r.members)))

	r.logger.Info().
		Str("session_id", u.ID).
		Str("nickname", nickname).
		Bool("moderator", u.IsModerator()).
		Int("total_users", len(r.members)).
		Msg("User admitted.")

	return nil
}

// Remove drops u from the registry and from every other user's block set.
// Removing a user that is not admitted is a no-op.
func (r *Registry) Remove(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(u)
}

// Leave announces u's departure with notice and removes u, as one step. The notice goes
// to every member including u. When u is no longer admitted, or was already kicked, u is
// removed silently and Leave reports false: the kick notice is its only departure notice.
func (r *Registry) Leave(u *User, notice string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[u]; !ok {
		return false
	}

	if u.isKicked() {
		r.removeLocked(u)
		return false
	}

	r.broadcastLocked(notice)
	r.removeLocked(u)
	return true
}

// removeLocked requires r.mu held for writing.
func (r *Registry) removeLocked(u *User) {
	if _, ok := r.members[u]; !ok {
		return
	}

	delete(r.members, u)
	key := foldName(u.Nickname())
	if r.byName[key] == u {
		delete(r.byName, key)
	}

	for other := range r.members {
		other.mu.Lock()
		delete(other.blocked, u)
		other.mu.Unlock()
	}

	metrics.ConnectedUsers.Set(float64(len(r.members)))

	r.logger.Info().
		Str("session_id", u.ID).
		Str("nickname", u.Nickname()).
		Int("total_users", len(r.members)).
		Msg("User removed.")
}

// Rename changes u's nickname and returns the previous one. It fails with
// ErrInvalidNickname or ErrNicknameTaken. Changing only the case of one's own
// nickname is allowed; renaming to the exact current nickname changes nothing.
func (r *Registry) Rename(u *User, newName string) (string, error) {
	newName = strings.Join(strings.Fields(newName), " ")
	if !ValidNickname(newName) {
		return "", errs.NewError(errs.ErrInvalidNickname)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[u]; !ok {
		return "", errs.NewError(errs.ErrUserNotFound, u.Nickname())
	}

	newKey := foldName(newName)
	if existing, ok := r.byName[newKey]; ok && existing != u {
		return "", errs.NewError(errs.ErrNicknameTaken, newName)
	}

	u.mu.Lock()
	oldName := u.nickname
	u.nickname = newName
	u.mu.Unlock()

	if oldName == newName {
		return oldName, nil
	}

	delete(r.byName, foldName(oldName))
	r.byName[newKey] = u

	r.logger.Info().
		Str("session_id", u.ID).
		Str("old_nickname", oldName).
		Str("new_nickname", newName).
		Msg("User renamed.")

	return oldName, nil
}

// Lookup finds the admitted user holding nickname.
func (r *Registry) Lookup(nickname string) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byName[foldName(nickname)]
	return u, ok
}

// Contains reports whether u is admitted.
func (r *Registry) Contains(u *User) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[u]
	return ok
}

// Len returns the number of admitted users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Block adds target to u's block set.
func (r *Registry) Block(u, target *User) error {
	if u == target {
		return errs.NewError(errs.ErrSelfBlock)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[target]; !ok {
		return errs.NewError(errs.ErrUserNotFound, target.Nickname())
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.blocked[target]; ok {
		return errs.NewError(errs.ErrAlreadyBlocked, target.Nickname())
	}
	u.blocked[target] = struct{}{}

	return nil
}

// Unblock removes target from u's block set.
func (r *Registry) Unblock(u, target *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.blocked[target]; !ok {
		return errs.NewError(errs.ErrNotBlocked, target.Nickname())
	}
	delete(u.blocked, target)

	return nil
}

// GrantModerator makes target a moderator.
func (r *Registry) GrantModerator(target *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[target]; !ok {
		return errs.NewError(errs.ErrUserNotFound, target.Nickname())
	}

	target.mu.Lock()
	target.moderator = true
	target.mu.Unlock()

	return nil
}

// Kick broadcasts notice to every member, target included, then sets target's kick
// signal. Its session removes it from the registry on the way out. A target that has
// already been kicked, or has left, is not found.
func (r *Registry) Kick(target *User, notice string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[target]; !ok || target.isKicked() {
		return errs.NewError(errs.ErrUserNotFound, target.Nickname())
	}

	r.broadcastLocked(notice)
	target.kick()
	return nil
}

// BroadcastSystem sends " >> " + text to every member.
func (r *Registry) BroadcastSystem(text string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.broadcastLocked(text)
}

// broadcastLocked requires r.mu held.
func (r *Registry) broadcastLocked(text string) {
	for m := range r.members {
		m.Notify(text)
	}
}

// BroadcastFrom sends "<sender>: text" to every member except the sender and those who
// blocked the sender.
func (r *Registry) BroadcastFrom(sender *User, text string) {
	line := sender.Nickname() + ": " + text

	r.mu.RLock()
	defer r.mu.RUnlock()

	for m := range r.members {
		if m == sender || m.HasBlocked(sender) {
			continue
		}
		m.Send(line)
	}
}

// Members returns the admitted users in nickname order.
func (r *Registry) Members() []*User {
	r.mu.RLock()
	members := make([]*User, 0, len(r.members))
	for m := range r.members {
		members = append(members, m)
	}
	r.mu.RUnlock()

	names := make(map[*User]string, len(members))
	for _, m := range members {
		names[m] = m.Nickname()
	}
	sort.Slice(members, func(i, j int) bool {
		return lessNickname(names[members[i]], names[members[j]])
	})
	return members
}

// Nicknames returns a consistent, sorted snapshot of every admitted nickname.
func (r *Registry) Nicknames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.members))
	for m := range r.members {
		names = append(names, m.Nickname())
	}
	r.mu.RUnlock()

	sort.Slice(names, func(i, j int) bool {
		return lessNickname(names[i], names[j])
	})
	return names
}

// Snapshot returns a consistent, sorted roster.
func (r *Registry) Snapshot() []user.User {
	r.mu.RLock()
	roster := make([]user.User, 0, len(r.members))
	for m := range r.members {
		roster = append(roster, m.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(roster, func(i, j int) bool {
		return lessNickname(roster[i].Nickname, roster[j].Nickname)
	})
	return roster
}

// lessNickname orders case-insensitively, falling back to byte order for ties.
func lessNickname(a, b string) bool {
	fa, fb := foldName(a), foldName(b)
	if fa != fb {
		return fa < fb
	}
	return a < b
}
