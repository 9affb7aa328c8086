package loadbalancer

import (
	"math/rand"

	"github.com/wayfinder/wayfinder/internal/upstream"
)

// Random picks uniformly over the host set using the injected PRNG, so
// tests can make selection deterministic by seeding Rng.
type Random struct {
	Rng *rand.Rand
}

// Pick returns a uniformly random host.
func (r *Random) Pick(hostSet *upstream.HostSet) (*upstream.Host, bool) {
	hosts := hostSet.Hosts()
	if len(hosts) == 0 {
		return nil, false
	}
	rng := r.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return hosts[rng.Intn(len(hosts))], true
}
