/*
Package chat contains the core of the chat server: the shared registry of connected users,
the per-connection session loop, and the slash-command dispatcher.

This file defines the User struct, the per-connection session state. A User owns a bounded
outbound queue drained by its own writer goroutine. A slow client only delays its own lines.
*/
package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcpchat/internal/app/user"
	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/pkg/metrics"
	"tcpchat/internal/pkg/randx"
)

const (
	// sendQueueSize is the number of outbound lines buffered per user.
	sendQueueSize = 256

	// systemPrefix frames notices from the server.
	systemPrefix = " >> "
)

// User is one connected participant.
type User struct {
	// ID identifies the session in logs and audit events.
	ID string

	// conn is the user's connection; nil for users that never go on the wire (tests).
	conn *Connection

	// address is the remote transport address, also the initial nickname.
	address string

	// connectedAt is when the user object was created.
	connectedAt time.Time

	// mu protects nickname, moderator and blocked. Lock order: Registry.mu before User.mu.
	mu        sync.RWMutex
	nickname  string
	moderator bool
	blocked   map[*User]struct{}

	// send queues outbound lines for the writer goroutine.
	send chan string

	// quit is closed to make the writer flush the queue and exit.
	quit     chan struct{}
	stopOnce sync.Once

	// writerDone is closed when the writer goroutine has returned.
	writerDone chan struct{}

	// kicked is closed exactly once to force the session to terminate.
	kicked   chan struct{}
	kickOnce sync.Once

	// structured logger with session context.
	logger zerolog.Logger
}

// NewUser creates the User for conn. Its nickname defaults to the connection address.
func NewUser(conn *Connection) *User {
	return newUser(randx.SessionID(), conn.Addr(), conn)
}

func newUser(id, address string, conn *Connection) *User {
	return &User{
		ID:          id,
		conn:        conn,
		address:     address,
		connectedAt: time.Now(),
		nickname:    address,
		blocked:     make(map[*User]struct{}),
		send:        make(chan string, sendQueueSize),
		quit:        make(chan struct{}),
		writerDone:  make(chan struct{}),
		kicked:      make(chan struct{}),
		logger:      logx.Session(id, address),
	}
}

// Nickname returns the current display name.
func (u *User) Nickname() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.nickname
}

// Address returns the remote transport address.
func (u *User) Address() string {
	return u.address
}

// IsModerator reports whether the user may use privileged commands.
func (u *User) IsModerator() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.moderator
}

// HasBlocked reports whether u suppresses room broadcasts from other.
func (u *User) HasBlocked(other *User) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.blocked[other]
	return ok
}

// Kicked returns a channel that is closed once the user has been kicked.
func (u *User) Kicked() <-chan struct{} {
	return u.kicked
}

func (u *User) isKicked() bool {
	select {
	case <-u.kicked:
		return true
	default:
		return false
	}
}

// kick sets the one-shot kick signal.
func (u *User) kick() {
	u.kickOnce.Do(func() {
		close(u.kicked)
	})
}

// Snapshot returns an immutable roster entry for the user.
func (u *User) Snapshot() user.User {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return user.User{
		ID:          u.ID,
		Nickname:    u.nickname,
		Address:     u.address,
		Moderator:   u.moderator,
		ConnectedAt: u.connectedAt,
	}
}

// Send queues a raw line for delivery. It never blocks: when the queue is full the line
// is dropped and false is returned.
func (u *User) Send(line string) bool {
	select {
	case u.send <- line:
		return true
	default:
		metrics.DroppedLines.Inc()
		u.logger.Warn().Int("queue_len", len(u.send)).Msg("User send queue full, dropping line.")
		return false
	}
}

// Notify queues a system notice (" >> " + text).
func (u *User) Notify(text string) bool {
	return u.Send(systemPrefix + text)
}

// Whisper queues a private line from sender.
func (u *User) Whisper(sender, text string) bool {
	return u.Send(sender + " whispers: " + text)
}

// startWriter launches the writer goroutine.
func (u *User) startWriter() {
	go u.writePump()
}

// writePump writes queued lines to the connection in order until quit is closed, then
// flushes whatever is still queued. A write failure closes the connection, which ends
// the session's read side.
func (u *User) writePump() {
	defer close(u.writerDone)

	for {
		select {
		case line := <-u.send:
			if !u.writeLine(line) {
				return
			}

		case <-u.quit:
			for {
				select {
				case line := <-u.send:
					if !u.writeLine(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// writeLine returns false when the writer should stop.
func (u *User) writeLine(line string) bool {
	if u.conn == nil {
		return true
	}

	if err := u.conn.WriteLine(line); err != nil {
		u.logger.Debug().Err(err).Msg("Error writing line, closing connection.")
		_ = u.conn.Close()
		return false
	}
	return true
}

// stopWriter asks the writer to flush and exit, waiting at most timeout.
func (u *User) stopWriter(timeout time.Duration) {
	u.stopOnce.Do(func() {
		close(u.quit)
	})

	select {
	case <-u.writerDone:
	case <-time.After(timeout):
		u.logger.Warn().Dur("timeout", timeout).Msg("Writer did not flush in time.")
	}
}
