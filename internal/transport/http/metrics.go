package httptransport

import "expvar"

var (
	metricListingsCreated  = expvar.NewInt("listings_created_total")
	metricPurchaseRequests = expvar.NewInt("purchase_requests_total")
	metricFundsReleased    = expvar.NewInt("funds_released_total")
	metricErrorsByCode     = expvar.NewMap("http_errors_by_code")
)
