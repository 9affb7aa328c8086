// Package clustermanager holds the active cluster set and fans out updates
// to each worker's thread-local view: a mutable map guarded by a lock,
// with an OnChange-style callback fired after the lock is released.
package clustermanager

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wayfinder/wayfinder/internal/loadbalancer"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

// UpdateCallbacks is registered by a worker to learn about cluster
// lifecycle events on its own thread.
type UpdateCallbacks interface {
	OnClusterAddOrUpdate(name string, fetch func() (*ThreadLocalCluster, bool))
	OnClusterRemoval(name string)
}

// clusterData is the main-thread-owned record for one cluster.
type clusterData struct {
	info    *upstream.ClusterInfo
	cluster *upstream.Cluster
}

// Manager holds the active cluster set and owns the per-worker Slots that
// mirror it. Mutations happen only from the main thread; workers read
// their own Slot's snapshot.
type Manager struct {
	log *slog.Logger

	mu         sync.RWMutex
	active     map[string]*clusterData
	warming    map[string]*clusterData
	callbacks  []UpdateCallbacks
	slots      []*Slot
	initHelper *InitHelper
}

// New builds an empty Manager.
func New(log *slog.Logger) *Manager {
	return &Manager{
		log:        log,
		active:     make(map[string]*clusterData),
		warming:    make(map[string]*clusterData),
		initHelper: NewInitHelper(),
	}
}

// NewSlot allocates a worker Slot and registers it for future updates.
func (m *Manager) NewSlot() *Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := newSlot()
	m.slots = append(m.slots, s)
	for name, cd := range m.active {
		s.set(name, newThreadLocalCluster(cd))
	}
	return s
}

// AddOrUpdateCluster builds a cluster from info and byPriority hosts,
// installs it as active, and posts the update to every worker Slot. It
// returns true if this was a new cluster, false if it replaced one.
func (m *Manager) AddOrUpdateCluster(info *upstream.ClusterInfo, byPriority map[upstream.Priority][]*upstream.Host) bool {
	cluster := upstream.NewCluster(info)
	cluster.Initialize(byPriority, nil)

	cd := &clusterData{info: info, cluster: cluster}

	m.mu.Lock()
	_, existed := m.active[info.Name()]
	m.active[info.Name()] = cd
	slots := append([]*Slot(nil), m.slots...)
	cbs := append([]UpdateCallbacks(nil), m.callbacks...)
	m.mu.Unlock()

	tlc := newThreadLocalCluster(cd)
	for _, s := range slots {
		s.set(info.Name(), tlc)
	}
	for _, cb := range cbs {
		cb.OnClusterAddOrUpdate(info.Name(), func() (*ThreadLocalCluster, bool) { return tlc, true })
	}

	if m.log != nil {
		verb := "added"
		if existed {
			verb = "updated"
		}
		m.log.Info("cluster "+verb, "name", info.Name())
	}
	return !existed
}

// RemoveCluster drops name from active, posting drain+removal to every
// worker Slot.
func (m *Manager) RemoveCluster(name string) bool {
	m.mu.Lock()
	_, ok := m.active[name]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.active, name)
	slots := append([]*Slot(nil), m.slots...)
	cbs := append([]UpdateCallbacks(nil), m.callbacks...)
	m.mu.Unlock()

	for _, s := range slots {
		s.remove(name)
	}
	for _, cb := range cbs {
		cb.OnClusterRemoval(name)
	}

	if m.log != nil {
		m.log.Info("cluster removed", "name", name)
	}
	return true
}

// GetThreadLocalCluster looks up name in slot's local view.
func (m *Manager) GetThreadLocalCluster(slot *Slot, name string) (*ThreadLocalCluster, bool) {
	return slot.get(name)
}

// AddThreadLocalClusterUpdateCallbacks registers cb for future add/update/
// removal events, firing it immediately for every currently-active
// cluster.
func (m *Manager) AddThreadLocalClusterUpdateCallbacks(cb UpdateCallbacks) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, cb)
	actives := make(map[string]*clusterData, len(m.active))
	for k, v := range m.active {
		actives[k] = v
	}
	m.mu.Unlock()

	for name, cd := range actives {
		tlc := newThreadLocalCluster(cd)
		cb.OnClusterAddOrUpdate(name, func() (*ThreadLocalCluster, bool) { return tlc, true })
	}
}

// DrainConnections marks name's ThreadLocalCluster (or every active
// cluster's, if name is "") drained in every worker Slot. It does not
// close or drain any connection pool.
func (m *Manager) DrainConnections(name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		for n := range m.active {
			m.drainOneLocked(n)
		}
		return nil
	}
	if _, ok := m.active[name]; !ok {
		return fmt.Errorf("clustermanager: unknown cluster %q", name)
	}
	m.drainOneLocked(name)
	return nil
}

func (m *Manager) drainOneLocked(name string) {
	for _, s := range m.slots {
		if tlc, ok := s.get(name); ok {
			tlc.DrainConnections()
		}
	}
}

// InitHelper exposes the manager's cluster-initialization phase tracker.
func (m *Manager) InitHelper() *InitHelper { return m.initHelper }

// ClusterSummary is a read-only snapshot of one cluster's configuration
// and live accounting, used by internal/admin to answer ListClusters
// without handing out the mutable clusterData itself.
type ClusterSummary struct {
	Name              string
	LBPolicy          upstream.LBPolicy
	DiscoveryType     upstream.DiscoveryType
	ConnectTimeout    time.Duration
	HostCount         int
	ActiveConnections int64
}

// Summaries returns a ClusterSummary for every active cluster.
func (m *Manager) Summaries() []ClusterSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ClusterSummary, 0, len(m.active))
	for _, cd := range m.active {
		var hostCount int
		var activeCx int64
		for _, hs := range cd.cluster.Priorities.HostSets() {
			hosts := hs.Hosts()
			hostCount += len(hosts)
			for _, h := range hosts {
				activeCx += h.ActiveConnections()
			}
		}
		out = append(out, ClusterSummary{
			Name:              cd.info.Name(),
			LBPolicy:          cd.info.LBPolicy(),
			DiscoveryType:     cd.info.DiscoveryType(),
			ConnectTimeout:    cd.info.ConnectTimeout(),
			HostCount:         hostCount,
			ActiveConnections: activeCx,
		})
	}
	return out
}

// ThreadLocalCluster is a per-worker view of one cluster: its own
// PrioritySet snapshot and its own LoadBalancer Selector instance.
type ThreadLocalCluster struct {
	Info     *upstream.ClusterInfo
	Priority *upstream.MainPrioritySet
	Selector loadbalancer.Selector

	mu      sync.Mutex
	drained bool
}

func newThreadLocalCluster(cd *clusterData) *ThreadLocalCluster {
	prio := upstream.NewMainPrioritySet()
	for _, set := range cd.cluster.Priorities.HostSets() {
		prio.UpdateHosts(set.Priority(), set.Hosts())
	}
	return &ThreadLocalCluster{
		Info:     cd.info,
		Priority: prio,
		Selector: loadbalancer.New(cd.info.LBPolicy(), nil, nil),
	}
}

// DrainConnections marks the thread-local cluster drained. Pool draining
// itself is owned by whatever constructed this cluster's connpool
// containers; this hook exists so Manager.DrainConnections has a single
// fan-out point.
func (t *ThreadLocalCluster) DrainConnections() {
	t.mu.Lock()
	t.drained = true
	t.mu.Unlock()
}

// Drained reports whether DrainConnections has been called.
func (t *ThreadLocalCluster) Drained() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.drained
}
