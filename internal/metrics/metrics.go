package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Live-channel metrics
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nexu_chat_messages_received_total",
			Help: "Total live messages received over the websocket",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nexu_chat_messages_sent_total",
			Help: "Total messages sent over the websocket",
		},
	)

	DuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nexu_chat_duplicates_dropped_total",
			Help: "Live messages dropped because their ID was already known",
		},
	)

	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nexu_chat_reconnects_total",
			Help: "Websocket reconnection attempts after a transient failure",
		},
	)

	// Request/response metrics
	HistoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexu_chat_history_fetches_total",
			Help: "Message history fetches",
		},
		[]string{"result"}, // "ok", "error" or "stale"
	)

	ViewedMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexu_chat_viewed_mutations_total",
			Help: "Mark-viewed mutations issued against the backend",
		},
		[]string{"result"}, // "ok" or "error"
	)
)
