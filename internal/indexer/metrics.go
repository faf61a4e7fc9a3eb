package indexer

import "expvar"

var (
	metricTicksTotal  = expvar.NewInt("indexer_ticks_total")
	metricTickErrors  = expvar.NewInt("indexer_tick_errors_total")
	metricEventsTotal = expvar.NewInt("indexer_events_total")
	metricLastBlock   = expvar.NewInt("indexer_last_block")
)
