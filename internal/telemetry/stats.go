// Package telemetry carries the proxy's optional observability surface:
// a StatSink for pool/router counters and gauges, and a thin OTel
// trace/metric wrapper for per-stream spans. Statistics exporters are
// out of scope, so every exported constructor here is opt-in —
// internal/proxy wires NoopSink by default and only swaps in a
// Prometheus-backed sink when the caller asks for one.
package telemetry

// StatSink is the counters/gauges interface for per-cluster accounting
// (idle/busy/connecting pool gauges, circuit-breaker overflow counters)
// and route match/miss outcomes. The router filter reports route
// matches/misses, overflows and connection failures through it; nothing
// in this proxy sets the pool gauges or the watermark counters.
type StatSink interface {
	IncRouteMatch(cluster string)
	IncRouteMiss()

	SetPoolIdle(cluster string, n int)
	SetPoolBusy(cluster string, n int)
	SetPoolConnecting(cluster string, n int)

	IncWatermarkHigh()
	IncWatermarkLow()

	IncOverflow(cluster string)
	IncConnectionFailure(cluster string)
}

type noopSink struct{}

func (noopSink) IncRouteMatch(string)          {}
func (noopSink) IncRouteMiss()                 {}
func (noopSink) SetPoolIdle(string, int)       {}
func (noopSink) SetPoolBusy(string, int)       {}
func (noopSink) SetPoolConnecting(string, int) {}
func (noopSink) IncWatermarkHigh()             {}
func (noopSink) IncWatermarkLow()              {}
func (noopSink) IncOverflow(string)            {}
func (noopSink) IncConnectionFailure(string)   {}

// NoopSink discards every call. It is the default StatSink until a caller
// wires a real one.
var NoopSink StatSink = noopSink{}
