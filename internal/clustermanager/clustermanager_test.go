package clustermanager

import (
	"testing"

	"github.com/wayfinder/wayfinder/internal/addr"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

func testInfo(t *testing.T, name string) *upstream.ClusterInfo {
	t.Helper()
	return upstream.NewClusterInfo(upstream.ClusterInfoConfig{
		Name:          name,
		DiscoveryType: upstream.DiscoveryStatic,
		LBPolicy:      upstream.LBRoundRobin,
	})
}

func testHosts(t *testing.T, info *upstream.ClusterInfo, n int) []*upstream.Host {
	t.Helper()
	hosts := make([]*upstream.Host, n)
	for i := 0; i < n; i++ {
		a, err := addr.FromHostPort("127.0.0.1:900" + string(rune('0'+i)))
		if err != nil {
			t.Fatalf("address: %v", err)
		}
		hosts[i] = upstream.NewHost(info.Name(), info, upstream.HostConfig{Address: a})
	}
	return hosts
}

func TestAddOrUpdateClusterVisibleToExistingSlot(t *testing.T) {
	m := New(nil)
	slot := m.NewSlot()

	info := testInfo(t, "c1")
	hosts := testHosts(t, info, 2)
	isNew := m.AddOrUpdateCluster(info, map[upstream.Priority][]*upstream.Host{
		upstream.PriorityDefault: hosts,
	})
	if !isNew {
		t.Fatal("expected first add to report new")
	}

	tlc, ok := m.GetThreadLocalCluster(slot, "c1")
	if !ok {
		t.Fatal("expected cluster visible on existing slot after add")
	}
	if got := len(tlc.Priority.HostSetAt(upstream.PriorityDefault).Hosts()); got != 2 {
		t.Fatalf("expected 2 hosts, got %d", got)
	}
}

func TestNewSlotSeesAlreadyActiveClusters(t *testing.T) {
	m := New(nil)
	info := testInfo(t, "c1")
	m.AddOrUpdateCluster(info, map[upstream.Priority][]*upstream.Host{
		upstream.PriorityDefault: testHosts(t, info, 1),
	})

	slot := m.NewSlot()
	if _, ok := m.GetThreadLocalCluster(slot, "c1"); !ok {
		t.Fatal("expected a newly created slot to already see active clusters")
	}
}

func TestRemoveClusterRemovesFromSlots(t *testing.T) {
	m := New(nil)
	slot := m.NewSlot()
	info := testInfo(t, "c1")
	m.AddOrUpdateCluster(info, map[upstream.Priority][]*upstream.Host{
		upstream.PriorityDefault: testHosts(t, info, 1),
	})

	if !m.RemoveCluster("c1") {
		t.Fatal("expected RemoveCluster to succeed")
	}
	if _, ok := m.GetThreadLocalCluster(slot, "c1"); ok {
		t.Fatal("expected cluster gone from slot after removal")
	}
	if m.RemoveCluster("c1") {
		t.Fatal("expected second removal to report false")
	}
}

type recCallbacks struct {
	added   []string
	removed []string
}

func (r *recCallbacks) OnClusterAddOrUpdate(name string, fetch func() (*ThreadLocalCluster, bool)) {
	r.added = append(r.added, name)
}
func (r *recCallbacks) OnClusterRemoval(name string) {
	r.removed = append(r.removed, name)
}

func TestUpdateCallbacksFireForExistingAndFutureClusters(t *testing.T) {
	m := New(nil)
	info := testInfo(t, "c1")
	m.AddOrUpdateCluster(info, map[upstream.Priority][]*upstream.Host{
		upstream.PriorityDefault: testHosts(t, info, 1),
	})

	cb := &recCallbacks{}
	m.AddThreadLocalClusterUpdateCallbacks(cb)
	if len(cb.added) != 1 || cb.added[0] != "c1" {
		t.Fatalf("expected immediate callback for existing cluster, got %+v", cb.added)
	}

	info2 := testInfo(t, "c2")
	m.AddOrUpdateCluster(info2, map[upstream.Priority][]*upstream.Host{
		upstream.PriorityDefault: testHosts(t, info2, 1),
	})
	if len(cb.added) != 2 || cb.added[1] != "c2" {
		t.Fatalf("expected callback for newly added cluster, got %+v", cb.added)
	}

	m.RemoveCluster("c1")
	if len(cb.removed) != 1 || cb.removed[0] != "c1" {
		t.Fatalf("expected removal callback, got %+v", cb.removed)
	}
}

func TestInitHelperFiresWhenBucketsEmpty(t *testing.T) {
	h := NewInitHelper()
	var primaryFired, allFired bool
	h.OnPrimaryClustersInitialized(func() { primaryFired = true })
	h.OnAllClustersInitialized(func() { allFired = true })

	h.AddCluster("c1", BucketPrimary, func(onInit func()) { onInit() })
	h.StartInitialization()

	if !primaryFired {
		t.Fatal("expected primary-initialized callback once primary bucket empties")
	}
	if !allFired {
		t.Fatal("expected all-initialized callback once no secondary clusters are pending")
	}
	if h.Phase() != PhaseAllClustersInitialized {
		t.Fatalf("expected AllClustersInitialized, got %v", h.Phase())
	}
}

func TestInitHelperWaitsForSecondaryBucket(t *testing.T) {
	h := NewInitHelper()
	var allFired bool
	h.OnAllClustersInitialized(func() { allFired = true })

	var secondaryInit func()
	h.AddCluster("primary1", BucketPrimary, func(onInit func()) { onInit() })
	h.AddCluster("secondary1", BucketSecondary, func(onInit func()) { secondaryInit = onInit })
	h.StartInitialization()

	if allFired {
		t.Fatal("did not expect all-initialized before secondary bucket empties")
	}
	secondaryInit()
	if !allFired {
		t.Fatal("expected all-initialized once secondary bucket empties")
	}
}
