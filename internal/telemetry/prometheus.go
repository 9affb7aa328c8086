package telemetry

import "github.com/prometheus/client_golang/prometheus"

var _ StatSink = (*PrometheusSink)(nil)

// PrometheusSink is the Prometheus-backed StatSink. Grounded on
// `teemuteemu-caddy-language-server`'s transitive `prometheus/client_golang`
// stack (caddy itself exposes an admin-API metrics endpoint this way).
type PrometheusSink struct {
	routeMatches   *prometheus.CounterVec
	routeMisses    prometheus.Counter
	poolIdle       *prometheus.GaugeVec
	poolBusy       *prometheus.GaugeVec
	poolConnecting *prometheus.GaugeVec
	watermarkHigh  prometheus.Counter
	watermarkLow   prometheus.Counter
	overflow       *prometheus.CounterVec
	connFailure    *prometheus.CounterVec
}

// NewPrometheusSink builds a PrometheusSink and registers its collectors
// with reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		routeMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayfinder",
			Subsystem: "router",
			Name:      "route_matches_total",
			Help:      "Number of requests successfully matched to a route, by cluster.",
		}, []string{"cluster"}),
		routeMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wayfinder",
			Subsystem: "router",
			Name:      "route_misses_total",
			Help:      "Number of requests with no matching virtual host or route.",
		}),
		poolIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wayfinder",
			Subsystem: "connpool",
			Name:      "idle_connections",
			Help:      "Idle upstream connections, by cluster.",
		}, []string{"cluster"}),
		poolBusy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wayfinder",
			Subsystem: "connpool",
			Name:      "busy_connections",
			Help:      "Busy upstream connections, by cluster.",
		}, []string{"cluster"}),
		poolConnecting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wayfinder",
			Subsystem: "connpool",
			Name:      "connecting_connections",
			Help:      "In-flight upstream dials, by cluster.",
		}, []string{"cluster"}),
		watermarkHigh: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wayfinder",
			Subsystem: "filtermanager",
			Name:      "watermark_high_total",
			Help:      "Number of times a stream crossed its high watermark.",
		}),
		watermarkLow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wayfinder",
			Subsystem: "filtermanager",
			Name:      "watermark_low_total",
			Help:      "Number of times a stream dropped below its low watermark.",
		}),
		overflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayfinder",
			Subsystem: "cluster",
			Name:      "overflow_total",
			Help:      "Circuit-breaker overflow events, by cluster.",
		}, []string{"cluster"}),
		connFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayfinder",
			Subsystem: "cluster",
			Name:      "connection_failures_total",
			Help:      "Upstream connect failures, by cluster.",
		}, []string{"cluster"}),
	}

	reg.MustRegister(
		s.routeMatches, s.routeMisses,
		s.poolIdle, s.poolBusy, s.poolConnecting,
		s.watermarkHigh, s.watermarkLow,
		s.overflow, s.connFailure,
	)
	return s
}

func (s *PrometheusSink) IncRouteMatch(cluster string) { s.routeMatches.WithLabelValues(cluster).Inc() }
func (s *PrometheusSink) IncRouteMiss()                 { s.routeMisses.Inc() }

func (s *PrometheusSink) SetPoolIdle(cluster string, n int) {
	s.poolIdle.WithLabelValues(cluster).Set(float64(n))
}
func (s *PrometheusSink) SetPoolBusy(cluster string, n int) {
	s.poolBusy.WithLabelValues(cluster).Set(float64(n))
}
func (s *PrometheusSink) SetPoolConnecting(cluster string, n int) {
	s.poolConnecting.WithLabelValues(cluster).Set(float64(n))
}

func (s *PrometheusSink) IncWatermarkHigh() { s.watermarkHigh.Inc() }
func (s *PrometheusSink) IncWatermarkLow()  { s.watermarkLow.Inc() }

func (s *PrometheusSink) IncOverflow(cluster string) { s.overflow.WithLabelValues(cluster).Inc() }
func (s *PrometheusSink) IncConnectionFailure(cluster string) {
	s.connFailure.WithLabelValues(cluster).Inc()
}
