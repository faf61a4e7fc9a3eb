package notify

import "expvar"

var (
	metricConnectionsTotal  = expvar.NewInt("ws_connections_total")
	metricConnectionsActive = expvar.NewInt("ws_connections_active")
	metricBroadcastsTotal   = expvar.NewInt("ws_broadcasts_total")
	metricMessagesSent      = expvar.NewInt("ws_messages_queued_total")
	metricMessagesDropped   = expvar.NewInt("ws_messages_dropped_total")
)
