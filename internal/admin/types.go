package admin

import "google.golang.org/protobuf/types/known/durationpb"

// ClusterSummary is the wire shape of one entry in ListClustersResponse.
// ConnectTimeout reuses durationpb.Duration the way Envoy cluster
// timeouts are conventionally built with durationpb.New,
// keeping this repo's one genuinely protobuf-generated type in its
// original form even though the surrounding messages are hand-written.
type ClusterSummary struct {
	Name              string               `json:"name"`
	LBPolicy          string               `json:"lb_policy"`
	DiscoveryType     string               `json:"discovery_type"`
	ConnectTimeout    *durationpb.Duration `json:"connect_timeout"`
	HostCount         int                  `json:"host_count"`
	ActiveConnections int64                `json:"active_connections"`
}

// ListClustersRequest takes no arguments; every active cluster is listed.
type ListClustersRequest struct{}

// ListClustersResponse carries one ClusterSummary per active cluster.
type ListClustersResponse struct {
	Clusters []*ClusterSummary `json:"clusters"`
}

// DrainClusterRequest names the cluster to drain, and how long callers
// should wait before forcibly closing any connections still open once the
// drain deadline passes.
type DrainClusterRequest struct {
	Name         string               `json:"name"`
	DrainTimeout *durationpb.Duration `json:"drain_timeout"`
}

// DrainClusterResponse is empty; a non-nil error reports failure.
type DrainClusterResponse struct{}

// DrainConnectionsRequest drains every active cluster at once; DrainCluster
// is the named-single-cluster counterpart.
type DrainConnectionsRequest struct{}

// DrainConnectionsResponse is empty; a non-nil error reports failure.
type DrainConnectionsResponse struct{}
