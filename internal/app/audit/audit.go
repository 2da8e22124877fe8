/*
Package audit records moderation-relevant session events: connections, renames, blocks,
kicks, moderator grants, and departures.

Chat message text is never recorded. Events are handed to a Recorder, which must never
block the calling session; AsyncRecorder queues events for a Store (such as the Postgres
store) and drops them, with a warning, when the queue is full.
*/
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/pkg/metrics"
)

// Action names a recorded event.
type Action string

const (
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
	ActionExit       Action = "exit"
	ActionKick       Action = "kick"
	ActionRename     Action = "rename"
	ActionBlock      Action = "block"
	ActionUnblock    Action = "unblock"
	ActionModerator  Action = "grant_moderator"
)

// Event is one audit record.
type Event struct {
	SessionID string
	Action    Action
	Actor     string
	Target    string
	Detail    string
	At        time.Time
}

// Recorder accepts audit events without blocking.
type Recorder interface {
	Record(e Event)
	Close(ctx context.Context) error
}

// Store persists audit events.
type Store interface {
	Insert(ctx context.Context, e Event) error
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Record(Event)                {}
func (NopRecorder) Close(context.Context) error { return nil }

// MemoryRecorder keeps events in memory.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) Record(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *MemoryRecorder) Close(context.Context) error { return nil }

// Events returns a copy of the recorded events.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// insertTimeout bounds a single Store.Insert call.
const insertTimeout = 5 * time.Second

// AsyncRecorder forwards events to a Store from a single background goroutine.
type AsyncRecorder struct {
	store Store

	// events queues records waiting to be written.
	events chan Event

	// mu guards closed so that Record never sends on a closed channel.
	mu     sync.RWMutex
	closed bool

	// wg is used to wait for the run goroutine to drain the queue.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewAsyncRecorder starts a recorder with a queue of the given size.
func NewAsyncRecorder(store Store, queueSize int) *AsyncRecorder {
	r := &AsyncRecorder{
		store:  store,
		events: make(chan Event, queueSize),
		logger: logx.Component("audit"),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// run writes queued events until the queue is closed and drained.
func (r *AsyncRecorder) run() {
	defer r.wg.Done()

	for e := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		if err := r.store.Insert(ctx, e); err != nil {
			r.logger.Error().Err(err).
				Str("action", string(e.Action)).
				Str("session_id", e.SessionID).
				Msg("Failed to write audit event.")
		}
		cancel()
	}
}

// Record queues e. A full or closed queue drops the event.
func (r *AsyncRecorder) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.events <- e:
	default:
		metrics.AuditDropped.Inc()
		r.logger.Warn().Str("action", string(e.Action)).Msg("Audit queue full, dropping event.")
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to expire.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
