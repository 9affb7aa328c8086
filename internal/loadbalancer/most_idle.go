package loadbalancer

import "github.com/wayfinder/wayfinder/internal/upstream"

// MostIdle picks the host whose connection pool currently holds the most
// idle connections, by stable host index on ties.
type MostIdle struct {
	Idle IdleCounter
}

// Pick returns the host with the most idle pooled connections.
func (m *MostIdle) Pick(hostSet *upstream.HostSet) (*upstream.Host, bool) {
	hosts := hostSet.Hosts()
	if len(hosts) == 0 {
		return nil, false
	}
	if m.Idle == nil {
		return hosts[0], true
	}
	best := hosts[0]
	bestIdle := m.Idle.NumIdle(best)
	for _, h := range hosts[1:] {
		idle := m.Idle.NumIdle(h)
		if idle > bestIdle {
			best, bestIdle = h, idle
		}
	}
	return best, true
}

// FirstAvailable returns the first host (by stable index) with any idle
// connection, falling back to the first host in the set if none has one.
type FirstAvailable struct {
	Idle IdleCounter
}

// Pick implements the first-available policy.
func (f *FirstAvailable) Pick(hostSet *upstream.HostSet) (*upstream.Host, bool) {
	hosts := hostSet.Hosts()
	if len(hosts) == 0 {
		return nil, false
	}
	if f.Idle != nil {
		for _, h := range hosts {
			if f.Idle.NumIdle(h) > 0 {
				return h, true
			}
		}
	}
	return hosts[0], true
}
