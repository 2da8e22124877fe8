/*
Package metrics defines the Prometheus collectors exported by the chat server.

Collectors are registered once on the default registry and exposed by the ops router
under /metrics.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat"

var (
	// ConnectedUsers is the number of users currently admitted into the registry.
	ConnectedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connected_users",
		Help:      "Number of users currently in the room.",
	})

	// SessionsTotal counts finished sessions by the reason they closed.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Finished chat sessions by close reason.",
	}, []string{"reason"})

	// LinesReceived counts inbound lines by kind (chat or command).
	LinesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lines_received_total",
		Help:      "Inbound lines by kind.",
	}, []string{"kind"})

	// CommandsTotal counts dispatched commands by name and result.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Dispatched slash-commands by name and result.",
	}, []string{"command", "result"})

	// DroppedLines counts outbound lines discarded because a recipient queue was full.
	DroppedLines = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_lines_total",
		Help:      "Outbound lines dropped because the recipient queue was full.",
	})

	// AuditDropped counts audit events discarded because the audit queue was full.
	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_dropped_total",
		Help:      "Audit events dropped because the recorder queue was full.",
	})
)
