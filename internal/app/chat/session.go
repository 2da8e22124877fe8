/*
Package chat contains the core of the chat server: the shared registry of connected users,
the per-connection session loop, and the slash-command dispatcher.

This file defines Session, which drives one connection through its lifecycle:
Connecting (admission), Active (read, dispatch, broadcast) and Closing (flush, close,
deregister). A failure inside a session only ever ends that session.
*/
package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcpchat/internal/app/audit"
	"tcpchat/internal/pkg/errs"
	"tcpchat/internal/pkg/metrics"
)

// CloseReason records why a session ended.
type CloseReason string

const (
	ReasonKicked       CloseReason = "kicked"
	ReasonSelfExit     CloseReason = "self-exit"
	ReasonDisconnected CloseReason = "disconnected"
	ReasonRejected     CloseReason = "rejected"
	ReasonShutdown     CloseReason = "shutdown"
)

// noisePayload is sent by some telnet clients on connect and is ignored.
const noisePayload = "\x18'\x01\x03\x03"

// defaultFlushTimeout bounds the final flush when no write timeout is configured.
const defaultFlushTimeout = 5 * time.Second

// Session runs the protocol for one connection.
type Session struct {
	conn       *Connection
	user       *User
	registry   *Registry
	dispatcher *Dispatcher
	recorder   audit.Recorder

	// flushTimeout bounds how long closing waits for queued lines to be written.
	flushTimeout time.Duration

	// afterAdmit, when set, runs right after the user joins the registry.
	afterAdmit func(u *User)

	// shuttingDown, when set, reports whether a kick came from server shutdown.
	shuttingDown func() bool

	admitted  bool
	closeOnce sync.Once
	reason    CloseReason

	logger zerolog.Logger
}

// NewSession creates the session and its User for conn.
func NewSession(conn *Connection, registry *Registry, dispatcher *Dispatcher, recorder audit.Recorder, writeTimeout time.Duration) *Session {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultFlushTimeout
	}

	u := NewUser(conn)

	return &Session{
		conn:         conn,
		user:         u,
		registry:     registry,
		dispatcher:   dispatcher,
		recorder:     recorder,
		flushTimeout: writeTimeout,
		logger:       u.logger,
	}
}

// User returns the session's user.
func (s *Session) User() *User {
	return s.user
}

// Run blocks until the session has closed and returns the reason.
func (s *Session) Run() (reason CloseReason) {
	s.user.startWriter()

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Msg("Session panicked, closing.")
			reason = s.close(ReasonDisconnected)
		}
	}()

	if err := s.registry.Admit(s.user); err != nil {
		if customErr, ok := errs.As(err); ok {
			s.user.Notify(customErr.Message)
		}
		s.logger.Info().Err(err).Msg("Session rejected at admission.")
		return s.close(ReasonRejected)
	}
	s.admitted = true

	if s.afterAdmit != nil {
		s.afterAdmit(s.user)
	}

	nickname := s.user.Nickname()
	s.registry.BroadcastSystem(fmt.Sprintf("%s has connected.", nickname))
	s.record(audit.ActionConnect, "")
	s.logger.Info().Str("nickname", nickname).Msg("Session active.")

	return s.close(s.loop())
}

// loop is the Active state. A kick takes priority over any pending line.
func (s *Session) loop() CloseReason {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go s.readLoop(lines, readErr, done)

	for {
		select {
		case <-s.user.Kicked():
			return ReasonKicked
		default:
		}

		select {
		case <-s.user.Kicked():
			return ReasonKicked

		case line := <-lines:
			if s.handleLine(line) == Terminate {
				return ReasonSelfExit
			}

		case err := <-readErr:
			s.logger.Debug().Err(err).Msg("Read ended.")
			return ReasonDisconnected
		}
	}
}

// readLoop delivers lines until the connection fails or the session stops listening.
// Closing the connection unblocks ReadLine, so the goroutine always exits.
func (s *Session) readLoop(lines chan<- string, readErr chan<- error, done <-chan struct{}) {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			readErr <- err
			return
		}

		select {
		case lines <- line:
		case <-done:
			return
		}
	}
}

// handleLine dispatches a command or broadcasts a chat line.
func (s *Session) handleLine(line string) Signal {
	if line == "" || line == noisePayload {
		return Continue
	}

	if strings.HasPrefix(line, "/") {
		metrics.LinesReceived.WithLabelValues("command").Inc()
		fields := strings.Fields(line)
		return s.dispatcher.Execute(s.user, fields[0], fields[1:])
	}

	metrics.LinesReceived.WithLabelValues("chat").Inc()
	s.registry.BroadcastFrom(s.user, line)
	return Continue
}

// close is the Closing state. It runs once; later calls return the first reason.
func (s *Session) close(reason CloseReason) CloseReason {
	s.closeOnce.Do(func() {
		if (reason == ReasonDisconnected || reason == ReasonSelfExit) && s.user.isKicked() {
			reason = ReasonKicked
		}

		s.user.stopWriter(s.flushTimeout)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Error closing connection.")
		}

		if s.admitted {
			if reason == ReasonDisconnected {
				notice := fmt.Sprintf("%s has disconnected.", s.user.Nickname())
				if s.registry.Leave(s.user, notice) {
					s.record(audit.ActionDisconnect, "")
				} else if s.user.isKicked() {
					reason = ReasonKicked
				}
			} else {
				s.registry.Remove(s.user)
			}
		}

		if reason == ReasonKicked && s.shuttingDown != nil && s.shuttingDown() {
			reason = ReasonShutdown
		}

		s.reason = reason
		metrics.SessionsTotal.WithLabelValues(string(reason)).Inc()
		s.logger.Info().
			Str("nickname", s.user.Nickname()).
			Str("reason", string(reason)).
			Msg("Session closed.")
	})
	return s.reason
}

func (s *Session) record(action audit.Action, detail string) {
	s.recorder.Record(audit.Event{
		SessionID: s.user.ID,
		Action:    action,
		Actor:     s.user.Nickname(),
		Detail:    detail,
		At:        time.Now(),
	})
}
