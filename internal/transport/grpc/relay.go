package grpcx

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Relay service, described by hand with well-known message types:
//
//	service Relay {
//	  rpc OccupantCount(google.protobuf.StringValue) returns (google.protobuf.Int64Value);
//	  rpc Connect(stream google.protobuf.Struct) returns (stream google.protobuf.Struct);
//	}
const (
	ServiceName             = "lofirelay.v1.Relay"
	OccupantCountFullMethod = "/" + ServiceName + "/OccupantCount"
	ConnectFullMethod       = "/" + ServiceName + "/Connect"
)

type RelayServer interface {
	OccupantCount(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	Connect(grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error
}

var RelayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OccupantCount", Handler: occupantCountHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Connect", Handler: connectHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "lofirelay/v1/relay.proto",
}

func RegisterRelayServer(s grpc.ServiceRegistrar, srv RelayServer) {
	s.RegisterService(&RelayServiceDesc, srv)
}

func occupantCountHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).OccupantCount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: OccupantCountFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServer).OccupantCount(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(RelayServer).Connect(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// RelayClient is the client side of RelayServiceDesc.
type RelayClient struct {
	cc grpc.ClientConnInterface
}

func NewRelayClient(cc grpc.ClientConnInterface) *RelayClient {
	return &RelayClient{cc: cc}
}

func (c *RelayClient) OccupantCount(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, OccupantCountFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect opens a session; room-id, user-id and username travel as outgoing metadata.
func (c *RelayClient) Connect(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[structpb.Struct, structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &RelayServiceDesc.Streams[0], ConnectFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}, nil
}
