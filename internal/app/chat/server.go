/*
Package chat contains the core of the chat server: the shared registry of connected users,
the per-connection session loop, and the slash-command dispatcher.

This file defines the Server, which accepts connections, runs one Session per connection,
and coordinates graceful shutdown of every live session.
*/
package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcpchat/internal/app/audit"
	"tcpchat/internal/pkg/logx"
)

// ErrServerClosed is returned by Serve and Handle after Shutdown.
var ErrServerClosed = errors.New("chat: server closed")

// Server owns the listener and the set of running sessions.
type Server struct {
	registry     *Registry
	dispatcher   *Dispatcher
	recorder     audit.Recorder
	writeTimeout time.Duration

	// mu protects listener and closed, and orders sessions.Add against Shutdown.
	mu       sync.Mutex
	listener net.Listener
	closed   bool

	// sessions counts running sessions.
	sessions sync.WaitGroup

	// structured logger with Server context.
	logger zerolog.Logger
}

// NewServer constructs a Server. A nil recorder disables auditing.
func NewServer(registry *Registry, dispatcher *Dispatcher, recorder audit.Recorder, writeTimeout time.Duration) *Server {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}

	return &Server{
		registry:     registry,
		dispatcher:   dispatcher,
		recorder:     recorder,
		writeTimeout: writeTimeout,
		logger:       logx.Component("server"),
	}
}

// Registry returns the registry shared by all sessions.
func (s *Server) Registry() *Registry {
	return s.registry
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown, running each in its own goroutine.
// It always returns a non-nil error; after Shutdown the error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Chat server listening.")

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay = min(2*tempDelay, time.Second)
				}
				s.logger.Warn().Err(err).Dur("retry_in", tempDelay).Msg("Accept error, retrying.")
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		go func() {
			if _, err := s.Handle(conn, conn.RemoteAddr().String()); err != nil {
				s.logger.Debug().Err(err).Msg("Connection refused.")
			}
		}()
	}
}

// Handle runs a session over t and blocks until it has closed. addr becomes the
// user's initial nickname. After Shutdown, t is closed and ErrServerClosed returned.
func (s *Server) Handle(t Transport, addr string) (CloseReason, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = t.Close()
		return "", ErrServerClosed
	}
	s.sessions.Add(1)
	s.mu.Unlock()
	defer s.sessions.Done()

	session := NewSession(NewConnection(t, addr, s.writeTimeout), s.registry, s.dispatcher, s.recorder, s.writeTimeout)
	session.afterAdmit = func(u *User) {
		if s.isClosed() {
			u.kick()
		}
	}
	session.shuttingDown = s.isClosed

	return session.Run(), nil
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown stops accepting connections, notifies and kicks every user, then waits for
// all sessions to close or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	s.logger.Info().Int("users", s.registry.Len()).Msg("Shutting down chat server...")

	if ln != nil {
		if err := ln.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Error closing listener.")
		}
	}

	s.registry.BroadcastSystem("Server is shutting down.")
	for _, u := range s.registry.Members() {
		u.kick()
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Chat server shutdown complete.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions: %w", ctx.Err())
	}
}
