package metrics

import "expvar"

var (
	StreamReconnects  = expvar.NewInt("stream_reconnects")
	TicksConsumed     = expvar.NewInt("ticks_consumed")
	SignalsSuppressed = expvar.NewInt("signals_suppressed")
	ContractsOpened   = expvar.NewInt("contracts_opened")
	ContractsSettled  = expvar.NewInt("contracts_settled")
	OrderErrors       = expvar.NewInt("order_errors")
	SettlementRetries = expvar.NewInt("settlement_retries")
	EmergencyStops    = expvar.NewInt("emergency_stops")
	ActivityLogDrops  = expvar.NewInt("activity_log_drops")
	ActivityLogWrites = expvar.NewInt("activity_log_writes")
)
