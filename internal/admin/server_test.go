package admin

import (
	"context"
	"net"
	"testing"

	"github.com/wayfinder/wayfinder/internal/addr"
	"github.com/wayfinder/wayfinder/internal/clustermanager"
	"github.com/wayfinder/wayfinder/internal/upstream"
)

func buildManagerWithCluster(t *testing.T) *clustermanager.Manager {
	t.Helper()
	cm := clustermanager.New(nil)

	info := upstream.NewClusterInfo(upstream.ClusterInfoConfig{Name: "backend"})
	a, err := addr.FromIP(net.ParseIP("10.0.0.1"), 8080)
	if err != nil {
		t.Fatalf("addr.FromIP: %v", err)
	}
	host := upstream.NewHost("backend", info, upstream.HostConfig{Address: a})

	cm.AddOrUpdateCluster(info, map[upstream.Priority][]*upstream.Host{
		upstream.PriorityDefault: {host},
	})
	return cm
}

func TestListClustersReportsActiveClusters(t *testing.T) {
	s := NewServer(buildManagerWithCluster(t), nil)

	resp, err := s.ListClusters(context.Background(), &ListClustersRequest{})
	if err != nil {
		t.Fatalf("ListClusters: %v", err)
	}
	if len(resp.Clusters) != 1 || resp.Clusters[0].Name != "backend" {
		t.Fatalf("unexpected clusters: %#v", resp.Clusters)
	}
	if resp.Clusters[0].HostCount != 1 {
		t.Fatalf("expected 1 host, got %d", resp.Clusters[0].HostCount)
	}
}

func TestDrainClusterRejectsEmptyName(t *testing.T) {
	s := NewServer(buildManagerWithCluster(t), nil)
	if _, err := s.DrainCluster(context.Background(), &DrainClusterRequest{}); err == nil {
		t.Fatal("expected an error for an empty cluster name")
	}
}

func TestDrainClusterRejectsUnknownName(t *testing.T) {
	s := NewServer(buildManagerWithCluster(t), nil)
	if _, err := s.DrainCluster(context.Background(), &DrainClusterRequest{Name: "missing"}); err == nil {
		t.Fatal("expected an error for an unknown cluster name")
	}
}

func TestDrainClusterSucceedsForKnownName(t *testing.T) {
	s := NewServer(buildManagerWithCluster(t), nil)
	if _, err := s.DrainCluster(context.Background(), &DrainClusterRequest{Name: "backend"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDrainConnectionsDrainsEveryCluster(t *testing.T) {
	s := NewServer(buildManagerWithCluster(t), nil)
	if _, err := s.DrainConnections(context.Background(), &DrainConnectionsRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
