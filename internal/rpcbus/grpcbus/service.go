// internal/rpcbus/grpcbus/service.go
// Hand-written grpc.ServiceDesc for the bus's single bidi-streaming method.
// There is no .proto here to run protoc against — see codec.go — so the
// descriptor is constructed the same way generated code would build one,
// just by hand. RegisterBusServer below hosts any DispatchServer
// implementation; this package ships no server implementation of its own.
package grpcbus

import (
    "google.golang.org/grpc"
)

const (
    serviceName   = "appgw.rpcbus.Bus"
    dispatchMethod = "/" + serviceName + "/Dispatch"
)

// DispatchServer is implemented by whatever hosts the secondary RPC bus.
type DispatchServer interface {
    Dispatch(stream grpc.ServerStream) error
}

func dispatchHandler(srv any, stream grpc.ServerStream) error {
    return srv.(DispatchServer).Dispatch(stream)
}

// serviceDesc is registered by RegisterBusServer.
var serviceDesc = grpc.ServiceDesc{
    ServiceName: serviceName,
    HandlerType: (*DispatchServer)(nil),
    Methods:     []grpc.MethodDesc{},
    Streams: []grpc.StreamDesc{
        {
            StreamName:    "Dispatch",
            Handler:       dispatchHandler,
            ServerStreams: true,
            ClientStreams: true,
        },
    },
}

// RegisterBusServer registers srv's Dispatch stream handler on s.
func RegisterBusServer(s *grpc.Server, srv DispatchServer) {
    s.RegisterService(&serviceDesc, srv)
}
