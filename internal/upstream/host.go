package upstream

import (
	"sync/atomic"
	"time"

	"github.com/wayfinder/wayfinder/internal/addr"
)

// Priority indexes a cluster's HostSet slice. 0 is the default priority,
// 1 is "high"; Envoy supports more, this proxy keeps only these two.
type Priority int

const (
	PriorityDefault Priority = 0
	PriorityHigh    Priority = 1
)

// TransportSocketFactory produces the framed byte-stream connections used
// to reach a Host. TLS handshake details are an external collaborator;
// this interface is the seam the rest of the proxy programs against.
type TransportSocketFactory interface {
	// Name identifies the transport for logging ("raw_buffer", "tls", ...).
	Name() string
}

// plainTransportSocketFactory is the only TransportSocketFactory this
// repo implements itself: a pass-through over the raw TCP byte stream.
// A TLS-terminating factory is an external collaborator and is injected
// by whatever wires up `internal/connection`.
type plainTransportSocketFactory struct{}

func (plainTransportSocketFactory) Name() string { return "raw_buffer" }

// PlainTransportSocketFactory is the default, TLS-less transport.
var PlainTransportSocketFactory TransportSocketFactory = plainTransportSocketFactory{}

// Host is one upstream endpoint. It is shared across every worker
// dispatcher; only its atomic fields are mutated after construction.
type Host struct {
	clusterName string
	address     addr.Address
	hostname    string
	clusterInfo *ClusterInfo
	transport   TransportSocketFactory
	metadata    map[string]string
	created     time.Time

	priority int32 // atomic
	activeCx int64 // atomic

	// rttEWMA holds an exponential moving average of observed
	// connect+first-byte latency, in nanoseconds. 0 means "never measured".
	rttEWMA int64 // atomic
}

// HostConfig carries the construction-time fields of a Host.
type HostConfig struct {
	Address   addr.Address
	Hostname  string
	Priority  Priority
	Transport TransportSocketFactory
	Metadata  map[string]string
}

// NewHost creates a Host bound to the given ClusterInfo.
func NewHost(clusterName string, info *ClusterInfo, cfg HostConfig) *Host {
	transport := cfg.Transport
	if transport == nil {
		transport = PlainTransportSocketFactory
	}
	return &Host{
		clusterName: clusterName,
		address:     cfg.Address,
		hostname:    cfg.Hostname,
		clusterInfo: info,
		transport:   transport,
		metadata:    cfg.Metadata,
		created:     time.Now(),
		priority:    int32(cfg.Priority),
	}
}

func (h *Host) ClusterName() string                         { return h.clusterName }
func (h *Host) Address() addr.Address                       { return h.address }
func (h *Host) Hostname() string                            { return h.hostname }
func (h *Host) ClusterInfo() *ClusterInfo                   { return h.clusterInfo }
func (h *Host) TransportSocketFactory() TransportSocketFactory { return h.transport }
func (h *Host) Metadata() map[string]string                 { return h.metadata }
func (h *Host) CreatedAt() time.Time                        { return h.created }

// Priority returns the host's current priority level.
func (h *Host) Priority() Priority { return Priority(atomic.LoadInt32(&h.priority)) }

// SetPriority updates the host's priority level; used when membership is
// rebuilt with a host moved between priority tiers.
func (h *Host) SetPriority(p Priority) { atomic.StoreInt32(&h.priority, int32(p)) }

// ActiveConnections returns the current active-connection count, shared
// across all workers.
func (h *Host) ActiveConnections() int64 { return atomic.LoadInt64(&h.activeCx) }

// resourceManager returns the ResourceManager for this host's priority,
// honoring the invariant active_cx <= max_connections_per_host.
func (h *Host) resourceManager() *ResourceManager {
	return h.clusterInfo.ResourceManager(h.Priority())
}

// TryAcquireConnection increments the active-connection count if doing so
// would not exceed the cluster's max_connections_per_host for this host's
// priority. It returns false (and makes no change) on overflow.
func (h *Host) TryAcquireConnection() bool {
	limit := int64(h.resourceManager().Limits().MaxConnectionsPerHost)
	for {
		cur := atomic.LoadInt64(&h.activeCx)
		if cur >= limit {
			return false
		}
		if atomic.CompareAndSwapInt64(&h.activeCx, cur, cur+1) {
			return true
		}
	}
}

// ReleaseConnection decrements the active-connection count.
func (h *Host) ReleaseConnection() {
	atomic.AddInt64(&h.activeCx, -1)
}

// RecordLatency folds a connect+first-byte latency sample into the host's
// RTT estimate using an EWMA with alpha = 1/8, the same smoothing factor
// TCP uses for its own RTT estimator.
func (h *Host) RecordLatency(sample time.Duration) {
	const alphaShift = 3 // alpha = 1/8
	ns := sample.Nanoseconds()
	for {
		cur := atomic.LoadInt64(&h.rttEWMA)
		var next int64
		if cur == 0 {
			next = ns
		} else {
			next = cur + (ns-cur)>>alphaShift
		}
		if atomic.CompareAndSwapInt64(&h.rttEWMA, cur, next) {
			return
		}
	}
}

// RTT returns the current RTT estimate, or -1 if never measured.
func (h *Host) RTT() time.Duration {
	v := atomic.LoadInt64(&h.rttEWMA)
	if v == 0 {
		return -1
	}
	return time.Duration(v)
}
