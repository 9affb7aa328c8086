package routerfilter

import (
	"github.com/wayfinder/wayfinder/internal/connpool"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

// Pools is the per-worker upstream connection pool multiplexer the router
// filter draws connections from, keyed by cluster name and host address so
// two clusters that happen to share a host address don't collide.
type Pools struct {
	m    *connpool.PriorityConnPoolMap[string, *connpool.HTTPPool]
	dial connpool.Dialer
}

// NewPools builds an empty pool multiplexer that dials new connections
// with dial.
func NewPools(dial connpool.Dialer) *Pools {
	return &Pools{
		m:    connpool.NewPriorityConnPoolMap[string, *connpool.HTTPPool](),
		dial: dial,
	}
}

func (p *Pools) poolFor(host *upstream.Host, info *upstream.ClusterInfo) *connpool.HTTPPool {
	key := host.ClusterName() + "|" + host.Address().String()
	return p.m.GetOrCreate(host.Priority(), key, func() *connpool.HTTPPool {
		return connpool.NewHTTPPool(host, info, host.Priority(), p.dial)
	})
}

// DrainConnections drains every pool this multiplexer has created, across
// every cluster and host, the same way clustermanager.Manager drains a
// single cluster's pools.
func (p *Pools) DrainConnections(behavior connpool.DrainBehavior) {
	p.m.DrainConnections(behavior)
}
