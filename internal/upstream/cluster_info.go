package upstream

import "time"

// DiscoveryType identifies how a cluster's hosts are obtained. This proxy
// only ever populates clusters from static configuration (CDS/RDS/EDS are
// out of scope), but the type is kept so ClusterConfig round-trips the
// same vocabulary as the cluster's external schema.
type DiscoveryType int

const (
	DiscoveryStatic DiscoveryType = iota
	DiscoveryStrictDNS
	DiscoveryLocalDNS
	DiscoveryEDS
	DiscoveryOriginalDst
)

func (d DiscoveryType) String() string {
	switch d {
	case DiscoveryStatic:
		return "static"
	case DiscoveryStrictDNS:
		return "strict_dns"
	case DiscoveryLocalDNS:
		return "local_dns"
	case DiscoveryEDS:
		return "eds"
	case DiscoveryOriginalDst:
		return "original_dst"
	default:
		return "unknown"
	}
}

// LBPolicy identifies a load-balancing strategy. The concrete selector
// implementations live in internal/loadbalancer; ClusterInfo only carries
// the chosen policy so the cluster manager knows which one to instantiate.
type LBPolicy int

const (
	LBRoundRobin LBPolicy = iota
	LBLeastRequest
	LBRandom
	LBLowestRTT
	LBFirstAvailable
)

func (p LBPolicy) String() string {
	switch p {
	case LBRoundRobin:
		return "round_robin"
	case LBLeastRequest:
		return "least_request"
	case LBRandom:
		return "random"
	case LBLowestRTT:
		return "lowest_rtt"
	case LBFirstAvailable:
		return "first_available"
	default:
		return "unknown"
	}
}

// DNSLookupFamily mirrors the external schema's dns_lookup_family enum.
// It is carried for config-surface completeness; static clusters (the
// only kind this proxy builds) ignore it.
type DNSLookupFamily int

const (
	DNSAuto DNSLookupFamily = iota
	DNSV4Only
	DNSV6Only
	DNSV4Preferred
)

// ClusterInfo is the immutable configuration view of a cluster. Once
// built it is never mutated, so it is freely shared across every worker
// dispatcher via a plain pointer (Go's GC plays the role of the source's
// Arc-like shared-ownership primitive).
type ClusterInfo struct {
	name                     string
	discoveryType            DiscoveryType
	lbPolicy                 LBPolicy
	dnsLookupFamily          DNSLookupFamily
	perConnectionBufferLimit int
	connectTimeout           time.Duration
	maxConnectAttemptsPerSec int
	resourceManagers         [2]*ResourceManager
}

// ClusterInfoConfig carries the construction-time fields of a ClusterInfo.
type ClusterInfoConfig struct {
	Name                     string
	DiscoveryType            DiscoveryType
	LBPolicy                 LBPolicy
	DNSLookupFamily          DNSLookupFamily
	PerConnectionBufferLimit int
	ConnectTimeout           time.Duration
	DefaultLimits            ResourceLimits
	HighPriorityLimits       ResourceLimits

	// MaxConnectAttemptsPerSecond caps how often internal/connpool's
	// HTTPPool may start a new dial to this cluster's hosts. Zero means
	// unlimited, matching Envoy's own default of no connect-rate limiting.
	MaxConnectAttemptsPerSecond int
}

// NewClusterInfo builds an immutable ClusterInfo.
func NewClusterInfo(cfg ClusterInfoConfig) *ClusterInfo {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.PerConnectionBufferLimit == 0 {
		cfg.PerConnectionBufferLimit = 1 << 20 // 1MiB, Envoy's own default
	}
	return &ClusterInfo{
		name:                     cfg.Name,
		discoveryType:            cfg.DiscoveryType,
		lbPolicy:                 cfg.LBPolicy,
		dnsLookupFamily:          cfg.DNSLookupFamily,
		perConnectionBufferLimit: cfg.PerConnectionBufferLimit,
		connectTimeout:           cfg.ConnectTimeout,
		maxConnectAttemptsPerSec: cfg.MaxConnectAttemptsPerSecond,
		resourceManagers: [2]*ResourceManager{
			NewResourceManager(cfg.DefaultLimits),
			NewResourceManager(cfg.HighPriorityLimits),
		},
	}
}

func (c *ClusterInfo) Name() string                         { return c.name }
func (c *ClusterInfo) DiscoveryType() DiscoveryType          { return c.discoveryType }
func (c *ClusterInfo) LBPolicy() LBPolicy                    { return c.lbPolicy }
func (c *ClusterInfo) DNSLookupFamily() DNSLookupFamily      { return c.dnsLookupFamily }
func (c *ClusterInfo) PerConnectionBufferLimit() int         { return c.perConnectionBufferLimit }
func (c *ClusterInfo) ConnectTimeout() time.Duration         { return c.connectTimeout }
func (c *ClusterInfo) MaxConnectAttemptsPerSecond() int      { return c.maxConnectAttemptsPerSec }

// ResourceManager returns the resource manager for the given priority.
func (c *ClusterInfo) ResourceManager(p Priority) *ResourceManager {
	if p < 0 || int(p) >= len(c.resourceManagers) {
		return c.resourceManagers[0]
	}
	return c.resourceManagers[p]
}
