// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_relay_connected_clients",
		Help: "Number of open websocket connections",
	})
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_relay_active_rooms",
		Help: "Number of rooms with at least one member",
	})
)

// Counters
var (
	JoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_relay_joins_total",
		Help: "Total join-room messages accepted",
	})
	MessagesRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_relay_messages_relayed_total",
		Help: "Messages delivered to members, by event type",
	}, []string{"type"})
	MessagesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_relay_messages_dropped_total",
		Help: "Messages not delivered, by reason",
	}, []string{"reason"})
)
