package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct, so no generated code is needed.
const ServiceName = "refkit.Inspector"

const (
	methodStats = "Stats"
	methodLeaks = "Leaks"
	methodAudit = "Audit"
)

// InspectorServer is the server API of refkit.Inspector.
type InspectorServer interface {
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Leaks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Audit(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(InspectorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	full := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InspectorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InspectorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var InspectorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodStats, Handler: unaryHandler(methodStats, InspectorServer.Stats)},
		{MethodName: methodLeaks, Handler: unaryHandler(methodLeaks, InspectorServer.Leaks)},
		{MethodName: methodAudit, Handler: unaryHandler(methodAudit, InspectorServer.Audit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "refkit/inspector.proto",
}

func RegisterInspectorServer(s grpc.ServiceRegistrar, srv InspectorServer) {
	s.RegisterService(&InspectorServiceDesc, srv)
}

// InspectorClient calls refkit.Inspector over any client connection.
type InspectorClient struct {
	cc grpc.ClientConnInterface
}

func NewInspectorClient(cc grpc.ClientConnInterface) *InspectorClient {
	return &InspectorClient{cc: cc}
}

func (c *InspectorClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InspectorClient) Stats(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodStats, in, opts...)
}

func (c *InspectorClient) Leaks(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodLeaks, in, opts...)
}

func (c *InspectorClient) Audit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodAudit, in, opts...)
}
