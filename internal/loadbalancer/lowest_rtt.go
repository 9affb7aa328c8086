package loadbalancer

import (
	"time"

	"github.com/wayfinder/wayfinder/internal/upstream"
)

// LowestRTT picks the host with the smallest measured RTT estimate,
// falling back to a never-measured host (RTT() == -1, treated as +Inf)
// only when no host has a measurement yet, in which case the first host
// by stable index wins the tie.
type LowestRTT struct{}

// Pick returns the host with the lowest RTT estimate.
func (l *LowestRTT) Pick(hostSet *upstream.HostSet) (*upstream.Host, bool) {
	hosts := hostSet.Hosts()
	if len(hosts) == 0 {
		return nil, false
	}
	best := hosts[0]
	bestRTT := effectiveRTT(best)
	for _, h := range hosts[1:] {
		rtt := effectiveRTT(h)
		if rtt < bestRTT {
			best, bestRTT = h, rtt
		}
	}
	return best, true
}

func effectiveRTT(h *upstream.Host) time.Duration {
	rtt := h.RTT()
	if rtt < 0 {
		return time.Duration(1<<63 - 1) // +Inf stand-in
	}
	return rtt
}
