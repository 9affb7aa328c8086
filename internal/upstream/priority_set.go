package upstream

import (
	"sync"

	"github.com/wayfinder/wayfinder/internal/addr"
)

// PrioritySet is the ordered vector of HostSet for a single cluster,
// indexed by priority. Index 0 is PriorityDefault, index 1 is
// PriorityHigh.
type PrioritySet struct {
	sets [2]*HostSet
}

// NewPrioritySet builds a PrioritySet with empty HostSets at both
// priorities.
func NewPrioritySet() *PrioritySet {
	return &PrioritySet{
		sets: [2]*HostSet{
			NewHostSet(PriorityDefault),
			NewHostSet(PriorityHigh),
		},
	}
}

// HostSetAt returns the HostSet for the given priority.
func (ps *PrioritySet) HostSetAt(p Priority) *HostSet {
	if p < 0 || int(p) >= len(ps.sets) {
		return nil
	}
	return ps.sets[p]
}

// HostSets returns all priority levels in order.
func (ps *PrioritySet) HostSets() []*HostSet {
	return []*HostSet{ps.sets[0], ps.sets[1]}
}

// MainPrioritySet additionally maintains a cross-priority
// address -> Host lookup, rebuilt whenever membership changes.
type MainPrioritySet struct {
	*PrioritySet

	mu      sync.RWMutex
	byAddr  map[string]*Host
}

// NewMainPrioritySet builds an empty MainPrioritySet.
func NewMainPrioritySet() *MainPrioritySet {
	return &MainPrioritySet{
		PrioritySet: NewPrioritySet(),
		byAddr:      make(map[string]*Host),
	}
}

// UpdateHosts replaces the membership at the given priority and rebuilds
// the address index.
func (mps *MainPrioritySet) UpdateHosts(p Priority, hosts []*Host) {
	hs := mps.HostSetAt(p)
	if hs == nil {
		return
	}
	hs.UpdateHosts(hosts)
	mps.rebuildIndex()
}

func (mps *MainPrioritySet) rebuildIndex() {
	idx := make(map[string]*Host)
	for _, hs := range mps.HostSets() {
		for _, h := range hs.Hosts() {
			idx[h.Address().String()] = h
		}
	}
	mps.mu.Lock()
	mps.byAddr = idx
	mps.mu.Unlock()
}

// HostForAddress looks up a host by its dial address across all
// priorities.
func (mps *MainPrioritySet) HostForAddress(a addr.Address) (*Host, bool) {
	mps.mu.RLock()
	defer mps.mu.RUnlock()
	h, ok := mps.byAddr[a.String()]
	return h, ok
}
