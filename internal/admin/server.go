package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/wayfinder/wayfinder/internal/clustermanager"
	"github.com/wayfinder/wayfinder/internal/connpool"
)

// PoolDrainer is implemented by whatever owns the live connection pools a
// cluster's hosts are served through (internal/proxy's Pools multiplexer).
// Admin only needs to trigger draining, never enumerate pools itself.
type PoolDrainer interface {
	DrainConnections(behavior connpool.DrainBehavior)
}

// Server implements AdminServiceServer against a live clustermanager.Manager.
// clustermanager.Manager itself only tracks per-cluster host/LB bookkeeping,
// not the connection pools bound to it (those are owned by whatever
// constructed them, elsewhere in the process), so DrainConnections fans
// out to both: the cluster manager's own accounting and, if one was
// registered via SetPoolDrainer, the live pools themselves. DrainCluster
// reaches only the cluster manager; it does not drain any pool.
type Server struct {
	cm    *clustermanager.Manager
	pools PoolDrainer
	log   *slog.Logger
}

// NewServer builds a Server backed by cm.
func NewServer(cm *clustermanager.Manager, log *slog.Logger) *Server {
	return &Server{cm: cm, log: log}
}

// SetPoolDrainer registers the connection-pool owner that DrainConnections
// should also notify. Optional: a Server with none set still drains the
// cluster manager's own bookkeeping.
func (s *Server) SetPoolDrainer(pools PoolDrainer) {
	s.pools = pools
}

func (s *Server) ListClusters(ctx context.Context, _ *ListClustersRequest) (*ListClustersResponse, error) {
	summaries := s.cm.Summaries()
	out := &ListClustersResponse{Clusters: make([]*ClusterSummary, 0, len(summaries))}
	for _, cs := range summaries {
		out.Clusters = append(out.Clusters, &ClusterSummary{
			Name:              cs.Name,
			LBPolicy:          cs.LBPolicy.String(),
			DiscoveryType:     cs.DiscoveryType.String(),
			ConnectTimeout:    durationpb.New(cs.ConnectTimeout),
			HostCount:         cs.HostCount,
			ActiveConnections: cs.ActiveConnections,
		})
	}
	return out, nil
}

func (s *Server) DrainCluster(ctx context.Context, req *DrainClusterRequest) (*DrainClusterResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "admin: cluster name is required")
	}
	if err := s.cm.DrainConnections(req.Name); err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	if s.log != nil {
		s.log.Info("admin: drained cluster", "name", req.Name)
	}
	return &DrainClusterResponse{}, nil
}

func (s *Server) DrainConnections(ctx context.Context, _ *DrainConnectionsRequest) (*DrainConnectionsResponse, error) {
	if err := s.cm.DrainConnections(""); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if s.pools != nil {
		s.pools.DrainConnections(connpool.DrainExisting)
	}
	if s.log != nil {
		s.log.Info("admin: drained all clusters")
	}
	return &DrainConnectionsResponse{}, nil
}

// Serve starts the gRPC listener and blocks until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	grpcServer := grpc.NewServer()
	RegisterAdminServiceServer(grpcServer, s)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin: listening on %s: %w", addr, err)
	}

	if s.log != nil {
		s.log.Info("admin server listening", "addr", addr)
	}

	go func() {
		<-ctx.Done()
		if s.log != nil {
			s.log.Info("shutting down admin server")
		}
		grpcServer.GracefulStop()
	}()

	return grpcServer.Serve(lis)
}
