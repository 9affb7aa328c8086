package configwatch

import (
	"fmt"
	"time"

	"github.com/wayfinder/wayfinder/internal/addr"
	"github.com/wayfinder/wayfinder/internal/router"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

// BuiltCluster pairs a ClusterInfo with the hosts that back it, partitioned
// by priority, ready to hand to clustermanager.Manager.AddOrUpdateCluster.
type BuiltCluster struct {
	Info       *upstream.ClusterInfo
	ByPriority map[upstream.Priority][]*upstream.Host
}

// BuildClusters translates every ClusterConfig in doc into a BuiltCluster.
func BuildClusters(doc *Document) ([]BuiltCluster, error) {
	out := make([]BuiltCluster, 0, len(doc.Clusters))
	for _, cc := range doc.Clusters {
		bc, err := buildCluster(cc)
		if err != nil {
			return nil, fmt.Errorf("configwatch: cluster %q: %w", cc.Name, err)
		}
		out = append(out, bc)
	}
	return out, nil
}

func buildCluster(cc ClusterConfig) (BuiltCluster, error) {
	if cc.Name == "" {
		return BuiltCluster{}, fmt.Errorf("missing name")
	}

	info := upstream.NewClusterInfo(upstream.ClusterInfoConfig{
		Name:                     cc.Name,
		DiscoveryType:            parseDiscoveryType(cc.Type),
		LBPolicy:                 parseLBPolicy(cc.LBPolicy),
		DNSLookupFamily:          parseDNSLookupFamily(cc.DNSLookupFamily),
		PerConnectionBufferLimit: cc.PerConnectionBufferLimit,
		ConnectTimeout:           connectTimeout(cc.ConnectTimeoutMs),
		DefaultLimits: upstream.ResourceLimits{
			MaxConnections:        cc.MaxConnections,
			MaxPendingRequests:    cc.MaxPendingRequests,
			MaxRequests:           cc.MaxRequests,
			MaxRetries:            cc.MaxRetries,
			MaxConnectionsPerHost: cc.MaxConnectionsPerHost,
		},
		MaxConnectAttemptsPerSecond: cc.MaxConnectAttemptsPerSecond,
	})

	byPriority := make(map[upstream.Priority][]*upstream.Host)
	for _, ep := range cc.Endpoints {
		priority := upstream.Priority(ep.LocalityPriority)
		for _, h := range ep.Hosts {
			a, err := addr.FromHostPort(fmt.Sprintf("%s:%d", h.Address, h.Port))
			if err != nil {
				return BuiltCluster{}, fmt.Errorf("host %s:%d: %w", h.Address, h.Port, err)
			}
			host := upstream.NewHost(cc.Name, info, upstream.HostConfig{
				Address:  a,
				Priority: priority,
				Metadata: h.Metadata,
			})
			byPriority[priority] = append(byPriority[priority], host)
		}
	}

	return BuiltCluster{Info: info, ByPriority: byPriority}, nil
}

func connectTimeout(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func parseDiscoveryType(s string) upstream.DiscoveryType {
	switch s {
	case "strict_dns":
		return upstream.DiscoveryStrictDNS
	case "local_dns":
		return upstream.DiscoveryLocalDNS
	case "eds":
		return upstream.DiscoveryEDS
	case "original_dst":
		return upstream.DiscoveryOriginalDst
	default:
		return upstream.DiscoveryStatic
	}
}

func parseLBPolicy(s string) upstream.LBPolicy {
	switch s {
	case "least_request":
		return upstream.LBLeastRequest
	case "random":
		return upstream.LBRandom
	case "lowest_rtt":
		return upstream.LBLowestRTT
	case "first_available":
		return upstream.LBFirstAvailable
	default:
		return upstream.LBRoundRobin
	}
}

func parseDNSLookupFamily(s string) upstream.DNSLookupFamily {
	switch s {
	case "v4_only":
		return upstream.DNSV4Only
	case "v6_only":
		return upstream.DNSV6Only
	case "v4_preferred":
		return upstream.DNSV4Preferred
	default:
		return upstream.DNSAuto
	}
}

// BuildRouteConfig translates doc.Routes into a router.RouteConfig.
func BuildRouteConfig(doc *Document) *router.RouteConfig {
	cfg := &router.RouteConfig{}
	for _, vhc := range doc.Routes.VirtualHosts {
		vh := router.VirtualHost{
			Name:                                vhc.Name,
			Domains:                             vhc.Domains,
			IgnorePortInHostMatching:            vhc.IgnorePortInHostMatching,
			IgnorePathParametersInPathMatching:  vhc.IgnorePathParametersInPathMatching,
			RewriteURLs:                         vhc.RewriteURLs,
		}
		for _, rc := range vhc.Routes {
			vh.Routes = append(vh.Routes, router.Route{
				PathMatch:     parsePathMatch(rc.PathMatch),
				Path:          rc.Path,
				ClusterName:   rc.Cluster,
				RewriteHost:   rc.RewriteHost,
				PrefixRewrite: rc.PrefixRewrite,
				Passthrough:   rc.Passthrough,
			})
		}
		cfg.VirtualHosts = append(cfg.VirtualHosts, vh)
	}
	return cfg
}

func parsePathMatch(s string) router.PathMatchKind {
	if s == "exact" {
		return router.PathExact
	}
	return router.PathPrefix
}
