// Package metrics defines and registers all custom Prometheus metrics for the
// fiches API. It is the single source of truth for metric names, labels, and
// help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation and exposed on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fiches"

// ── Record metrics ────────────────────────────────────────────────────────────

// RecordMutationsTotal counts committed record mutations.
// Label:
//   - action: the policy action (e.g. "create", "update_visibility", "delete")
var RecordMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_mutations_total",
		Help:      "Total number of record mutations committed, by action.",
	},
	[]string{"action"},
)

// RecordMutationErrorsTotal counts mutations that failed in the repository.
// Labels:
//   - action: the policy action
//   - reason: "validation", "not_found", "store_unavailable" or "other"
var RecordMutationErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_mutation_errors_total",
		Help:      "Total number of record mutations rejected or failed by the repository.",
	},
	[]string{"action", "reason"},
)

// StatsCacheTotal counts stats cache lookups.
// Label:
//   - result: "hit" or "miss"
var StatsCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stats_cache_total",
		Help:      "Total number of creation statistics cache lookups, labelled by result (hit/miss).",
	},
	[]string{"result"},
)

// ── Auth metrics ──────────────────────────────────────────────────────────────

// AuthRejectionsTotal counts requests refused by the credential verifier or
// the access policy.
// Label:
//   - reason: "missing", "invalid", "expired", "unknown_identity" or "denied"
var AuthRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_rejections_total",
		Help:      "Total number of requests rejected by authentication or authorization.",
	},
	[]string{"reason"},
)

// ── Broadcast metrics ─────────────────────────────────────────────────────────

// BroadcastEventsTotal counts published change events.
// Label:
//   - event: the push event name (e.g. "new-fiche")
var BroadcastEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_events_total",
		Help:      "Total number of change events published to subscribers.",
	},
	[]string{"event"},
)

// BroadcastDroppedTotal counts deliveries skipped because a subscriber's
// buffer was full.
var BroadcastDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_dropped_total",
		Help:      "Total number of event deliveries dropped for slow subscribers.",
	},
)

// SubscribersConnected tracks the number of open push connections.
// Label:
//   - transport: "websocket" or "sse"
var SubscribersConnected = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers_connected",
		Help:      "Current number of connected push subscribers.",
	},
	[]string{"transport"},
)
