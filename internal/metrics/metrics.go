package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mentormatch_messages_sent_total",
		Help: "Messages accepted and persisted by the message pipeline.",
	})

	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mentormatch_messages_delivered_total",
		Help: "Message pushes written to live websocket handles.",
	})

	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mentormatch_messages_rejected_total",
		Help: "Send requests rejected before persistence.",
	}, []string{"reason"})

	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mentormatch_websocket_connections",
		Help: "Currently open websocket handles.",
	})
)
