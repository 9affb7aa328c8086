package connpool

import (
	"sync"

	"github.com/wayfinder/wayfinder/internal/upstream"
)

// Pool is the subset of HTTPPool/TCPPool's surface PriorityConnPoolMap
// needs to drive draining without caring which kind of pool it holds.
type Pool interface {
	DrainConnections(behavior DrainBehavior)
}

// PriorityConnPoolMap is the two-level priority -> key -> pool multiplexer.
// Key is typically a protocol/transport hash; callers pick whatever
// comparable type fits (this proxy uses a string built from the upstream
// protocol name).
type PriorityConnPoolMap[K comparable, P Pool] struct {
	mu sync.Mutex

	// container per priority; do_not_delete makes Remove refuse to delete
	// a pool while a drain pass is in flight. GetOrCreate ignores it.
	containers [2]*priorityContainer[K, P]
}

type priorityContainer[K comparable, P Pool] struct {
	pools       map[K]P
	doNotDelete bool
}

// NewPriorityConnPoolMap builds an empty map.
func NewPriorityConnPoolMap[K comparable, P Pool]() *PriorityConnPoolMap[K, P] {
	m := &PriorityConnPoolMap[K, P]{}
	for i := range m.containers {
		m.containers[i] = &priorityContainer[K, P]{pools: make(map[K]P)}
	}
	return m
}

// GetOrCreate returns the existing pool for (priority, key), or invokes
// factory to build one. factory runs at most once per key, under the
// map's lock.
func (m *PriorityConnPoolMap[K, P]) GetOrCreate(priority upstream.Priority, key K, factory func() P) P {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.containerFor(priority)
	if p, ok := c.pools[key]; ok {
		return p
	}
	p := factory()
	c.pools[key] = p
	return p
}

func (m *PriorityConnPoolMap[K, P]) containerFor(priority upstream.Priority) *priorityContainer[K, P] {
	idx := int(priority)
	if idx < 0 || idx >= len(m.containers) {
		idx = 0
	}
	return m.containers[idx]
}

// DrainConnections drains every pool across every priority, guarding each
// priority's container with do_not_delete so a pool's own teardown
// callback that calls Remove cannot delete from the map mid-drain.
// GetOrCreate is not blocked and may still add pools during the pass.
func (m *PriorityConnPoolMap[K, P]) DrainConnections(behavior DrainBehavior) {
	m.mu.Lock()
	var snapshot []P
	for _, c := range m.containers {
		c.doNotDelete = true
		for _, p := range c.pools {
			snapshot = append(snapshot, p)
		}
	}
	m.mu.Unlock()

	for _, p := range snapshot {
		p.DrainConnections(behavior)
	}

	m.mu.Lock()
	for _, c := range m.containers {
		c.doNotDelete = false
	}
	m.mu.Unlock()
}

// Remove deletes the pool at (priority, key), unless the container is
// currently guarded by a drain pass in flight.
func (m *PriorityConnPoolMap[K, P]) Remove(priority upstream.Priority, key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.containerFor(priority)
	if c.doNotDelete {
		return false
	}
	if _, ok := c.pools[key]; !ok {
		return false
	}
	delete(c.pools, key)
	return true
}

// Empty reports whether every priority's container holds no pools.
func (m *PriorityConnPoolMap[K, P]) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.containers {
		if len(c.pools) > 0 {
			return false
		}
	}
	return true
}

// Each calls fn for every (priority, key, pool) currently held. fn must
// not call back into GetOrCreate/Remove/DrainConnections.
func (m *PriorityConnPoolMap[K, P]) Each(fn func(priority upstream.Priority, key K, pool P)) {
	m.mu.Lock()
	type entry struct {
		priority upstream.Priority
		key      K
		pool     P
	}
	var entries []entry
	for i, c := range m.containers {
		for k, p := range c.pools {
			entries = append(entries, entry{upstream.Priority(i), k, p})
		}
	}
	m.mu.Unlock()
	for _, e := range entries {
		fn(e.priority, e.key, e.pool)
	}
}
