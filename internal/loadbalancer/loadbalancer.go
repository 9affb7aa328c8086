// Package loadbalancer implements the host-selection strategies: round-
// robin, lowest-RTT, most-idle, first-available, and random. Every
// selector operates on a single HostSet (priority 0 in this scope) and
// is safe for concurrent use from its owning
// worker's dispatcher goroutine only — like everything under a
// ThreadLocalCluster, a LoadBalancer instance belongs to one worker.
package loadbalancer

import (
	"math/rand"

	"github.com/wayfinder/wayfinder/internal/upstream"
)

// IdleCounter reports how many idle (ready-to-use) connections a host's
// connection pool currently holds. most_idle and first_available consult
// this to pick hosts with spare capacity; internal/connpool implements
// it over its per-host pool containers.
type IdleCounter interface {
	NumIdle(host *upstream.Host) int
}

// Selector picks one host from a HostSet. It returns (nil, false) when
// the set is empty rather than panicking.
type Selector interface {
	Pick(hosts *upstream.HostSet) (*upstream.Host, bool)
}

// New constructs the Selector for the given policy. idle is required for
// MostIdle and FirstAvailable; it may be nil for the other policies.
func New(policy upstream.LBPolicy, idle IdleCounter, rng *rand.Rand) Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	switch policy {
	case upstream.LBLowestRTT:
		return &LowestRTT{}
	case upstream.LBLeastRequest:
		return &MostIdle{Idle: idle}
	case upstream.LBFirstAvailable:
		return &FirstAvailable{Idle: idle}
	case upstream.LBRandom:
		return &Random{Rng: rng}
	default:
		return &RoundRobin{}
	}
}
