package admin

import "testing"

func TestJSONCodecRoundTripsListClustersResponse(t *testing.T) {
	c := jsonCodec{}
	in := &ListClustersResponse{
		Clusters: []*ClusterSummary{
			{Name: "backend", LBPolicy: "round_robin", HostCount: 2, ActiveConnections: 1},
		},
	}

	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out ListClustersResponse
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Clusters) != 1 || out.Clusters[0].Name != "backend" {
		t.Fatalf("unexpected round-trip result: %#v", out.Clusters)
	}
	if out.Clusters[0].HostCount != 2 || out.Clusters[0].ActiveConnections != 1 {
		t.Fatalf("unexpected counters: %#v", out.Clusters[0])
	}
}

func TestCodecNameIsRegistered(t *testing.T) {
	if (jsonCodec{}).Name() != codecName {
		t.Fatalf("codec Name() should equal codecName")
	}
}
