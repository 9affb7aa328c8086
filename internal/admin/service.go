package admin

import (
	"context"

	"google.golang.org/grpc"
)

// AdminServiceServer is the service this package exposes: runtime
// visibility and control over the cluster manager's active clusters,
// exposed over google.golang.org/grpc rather than a plain HTTP mux.
type AdminServiceServer interface {
	ListClusters(context.Context, *ListClustersRequest) (*ListClustersResponse, error)
	DrainCluster(context.Context, *DrainClusterRequest) (*DrainClusterResponse, error)
	DrainConnections(context.Context, *DrainConnectionsRequest) (*DrainConnectionsResponse, error)
}

// AdminService_ServiceDesc is the hand-written equivalent of what
// protoc-gen-go-grpc would emit for a 3-method unary service. Every
// method's wire messages are marshaled through the admin-json Codec
// registered in codec.go, selected by CallContentSubtype below.
var AdminService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "wayfinder.admin.AdminService",
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListClusters", Handler: adminListClustersHandler},
		{MethodName: "DrainCluster", Handler: adminDrainClusterHandler},
		{MethodName: "DrainConnections", Handler: adminDrainConnectionsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/admin/service.proto",
}

// RegisterAdminServiceServer attaches srv to s under this package's
// ServiceDesc.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&AdminService_ServiceDesc, srv)
}

func adminListClustersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListClustersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).ListClusters(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/wayfinder.admin.AdminService/ListClusters"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).ListClusters(ctx, req.(*ListClustersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminDrainClusterHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DrainClusterRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).DrainCluster(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/wayfinder.admin.AdminService/DrainCluster"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).DrainCluster(ctx, req.(*DrainClusterRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminDrainConnectionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DrainConnectionsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).DrainConnections(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/wayfinder.admin.AdminService/DrainConnections"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).DrainConnections(ctx, req.(*DrainConnectionsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AdminServiceClient is the hand-written equivalent of a
// protoc-gen-go-grpc client stub.
type AdminServiceClient interface {
	ListClusters(ctx context.Context, in *ListClustersRequest, opts ...grpc.CallOption) (*ListClustersResponse, error)
	DrainCluster(ctx context.Context, in *DrainClusterRequest, opts ...grpc.CallOption) (*DrainClusterResponse, error)
	DrainConnections(ctx context.Context, in *DrainConnectionsRequest, opts ...grpc.CallOption) (*DrainConnectionsResponse, error)
}

type adminServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminServiceClient wraps cc for calling this package's service.
func NewAdminServiceClient(cc grpc.ClientConnInterface) AdminServiceClient {
	return &adminServiceClient{cc: cc}
}

func (c *adminServiceClient) ListClusters(ctx context.Context, in *ListClustersRequest, opts ...grpc.CallOption) (*ListClustersResponse, error) {
	out := new(ListClustersResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/wayfinder.admin.AdminService/ListClusters", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminServiceClient) DrainCluster(ctx context.Context, in *DrainClusterRequest, opts ...grpc.CallOption) (*DrainClusterResponse, error) {
	out := new(DrainClusterResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/wayfinder.admin.AdminService/DrainCluster", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminServiceClient) DrainConnections(ctx context.Context, in *DrainConnectionsRequest, opts ...grpc.CallOption) (*DrainConnectionsResponse, error) {
	out := new(DrainConnectionsResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/wayfinder.admin.AdminService/DrainConnections", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
