// Package metrics declares every Prometheus series the room actor and its
// collaborators export. Metrics live in their own package, the way the
// teacher keeps them separate from business logic, to avoid import cycles
// between internal/v1/room, internal/v1/alarm, internal/v1/storage, and
// internal/v1/lobby.
//
// Naming convention: namespace_subsystem_name
//   - namespace: diceroom (application-level grouping)
//   - subsystem: websocket, room, seat, game, alarm, lobby, circuit_breaker,
//     rate_limit, redis (feature-level grouping)
//   - name: specific metric (connections_active, events_total, etc.)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveWebSocketConnections tracks the current number of open WS
	// connections across every room this process owns.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "diceroom",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live Room actors.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "diceroom",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// SeatedPlayers tracks the current number of occupied seats per room
	// (GaugeVec keyed by room code, not a histogram, since callers want
	// the current count per room rather than a distribution).
	SeatedPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "diceroom",
		Subsystem: "seat",
		Name:      "occupied_count",
		Help:      "Number of occupied seats in each room",
	}, []string{"room_code"})

	// WebsocketEvents tracks every inbound WS command processed, labeled
	// by command type and outcome.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diceroom",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks inbound-command handling latency.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "diceroom",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// GameStateTransitions tracks Room-Game state machine transitions
	// (C3), labeled by from/to state.
	GameStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diceroom",
		Subsystem: "game",
		Name:      "transitions_total",
		Help:      "Total Room-Game state machine transitions",
	}, []string{"from", "to"})

	// AlarmsFired tracks how many of each alarm type have fired.
	AlarmsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diceroom",
		Subsystem: "alarm",
		Name:      "fired_total",
		Help:      "Total alarms fired, by type",
	}, []string{"type"})

	// AlarmsPending is the current number of outstanding alarms per room.
	AlarmsPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "diceroom",
		Subsystem: "alarm",
		Name:      "pending_count",
		Help:      "Number of pending alarms in each room",
	}, []string{"room_code"})

	// CircuitBreakerState tracks the current state of the circuit breaker
	// guarding the Redis/lobby transport. 0: Closed, 1: Open, 2: Half-Open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "diceroom",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks requests rejected by the circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diceroom",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// LobbyNotifyAttempts tracks External Notifier (C9) delivery attempts.
	LobbyNotifyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diceroom",
		Subsystem: "lobby",
		Name:      "notify_attempts_total",
		Help:      "Total lobby notification attempts, by outcome",
	}, []string{"outcome"})

	// RateLimitExceeded tracks requests that exceeded a rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diceroom",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diceroom",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks Storage Facade / bus Redis operations.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diceroom",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks Redis operation latency.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "diceroom",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
