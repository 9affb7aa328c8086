package upstream

import (
	"testing"
	"time"

	"github.com/wayfinder/wayfinder/internal/addr"
)

func testClusterInfo(maxPerHost int) *ClusterInfo {
	return NewClusterInfo(ClusterInfoConfig{
		Name: "test",
		DefaultLimits: ResourceLimits{
			MaxConnectionsPerHost: maxPerHost,
		},
	})
}

func TestHostAcquireReleaseRespectsLimit(t *testing.T) {
	info := testClusterInfo(2)
	a, _ := addr.FromHostPort("10.0.0.1:80")
	h := NewHost("test", info, HostConfig{Address: a})

	if !h.TryAcquireConnection() {
		t.Fatal("expected first acquire to succeed")
	}
	if !h.TryAcquireConnection() {
		t.Fatal("expected second acquire to succeed")
	}
	if h.TryAcquireConnection() {
		t.Fatal("expected third acquire to fail (limit=2)")
	}
	if got := h.ActiveConnections(); got != 2 {
		t.Fatalf("ActiveConnections() = %d, want 2", got)
	}

	h.ReleaseConnection()
	if got := h.ActiveConnections(); got != 1 {
		t.Fatalf("ActiveConnections() = %d, want 1", got)
	}
	if !h.TryAcquireConnection() {
		t.Fatal("expected acquire after release to succeed")
	}
}

func TestHostRTTUnmeasured(t *testing.T) {
	info := testClusterInfo(10)
	a, _ := addr.FromHostPort("10.0.0.1:80")
	h := NewHost("test", info, HostConfig{Address: a})
	if h.RTT() != -1 {
		t.Fatalf("expected -1 RTT before any sample, got %v", h.RTT())
	}
	h.RecordLatency(100 * time.Millisecond)
	if h.RTT() <= 0 {
		t.Fatalf("expected positive RTT after sample, got %v", h.RTT())
	}
}

func TestMainPrioritySetLookup(t *testing.T) {
	info := testClusterInfo(10)
	mps := NewMainPrioritySet()
	a1, _ := addr.FromHostPort("10.0.0.1:80")
	a2, _ := addr.FromHostPort("10.0.0.2:80")
	h1 := NewHost("test", info, HostConfig{Address: a1})
	h2 := NewHost("test", info, HostConfig{Address: a2, Priority: PriorityHigh})

	mps.UpdateHosts(PriorityDefault, []*Host{h1})
	mps.UpdateHosts(PriorityHigh, []*Host{h2})

	got, ok := mps.HostForAddress(a1)
	if !ok || got != h1 {
		t.Fatalf("expected to find h1 by address")
	}
	got, ok = mps.HostForAddress(a2)
	if !ok || got != h2 {
		t.Fatalf("expected to find h2 by address")
	}

	if mps.HostSetAt(PriorityDefault).Len() != 1 {
		t.Fatalf("expected 1 host at default priority")
	}
	if mps.HostSetAt(PriorityHigh).Len() != 1 {
		t.Fatalf("expected 1 host at high priority")
	}
}
