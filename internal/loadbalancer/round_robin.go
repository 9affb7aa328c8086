package loadbalancer

import (
	"sync/atomic"

	"github.com/wayfinder/wayfinder/internal/upstream"
)

// RoundRobin cycles through a HostSet's hosts using a per-instance cursor.
// With a single host it degrades to LowestRTT (LowestRTT
// with one host is equivalent to always returning that host, but routing
// through it keeps RTT bookkeeping consistent with multi-host clusters).
type RoundRobin struct {
	cursor uint64 // atomic
}

// Pick returns the next host in rotation.
func (r *RoundRobin) Pick(hostSet *upstream.HostSet) (*upstream.Host, bool) {
	hosts := hostSet.Hosts()
	if len(hosts) == 0 {
		return nil, false
	}
	if len(hosts) == 1 {
		return (&LowestRTT{}).Pick(hostSet)
	}
	idx := atomic.AddUint64(&r.cursor, 1) - 1
	return hosts[idx%uint64(len(hosts))], true
}
