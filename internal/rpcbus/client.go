// internal/rpcbus/client.go
// Package rpcbus defines the contract for the "secondary JSON-RPC dispatch"
// of §1/§4.E/§6: a bus the router engine calls into when a resolution rule
// is not a direct in-process call. The bus itself — the host plugin
// framework's RPC transport — is an external collaborator per §1; this
// package only fixes the shape the engine consumes, plus a concrete
// gRPC-backed implementation in the grpcbus subpackage.
package rpcbus

import (
    "context"
    "encoding/json"

    "github.com/kestrelgw/appgw/internal/gateway"
)

// Client is the secondary JSON-RPC bus the router engine dispatches
// non-direct-call rules through (gateway.RPCClient).
type Client interface {
    Invoke(ctx context.Context, callsign, method string, params json.RawMessage, gctx gateway.GatewayContext) (string, *gateway.RouteError)
}

// FuncClient adapts a plain function to Client; used in tests and for tiny
// deployments that stub out the secondary bus entirely.
type FuncClient func(ctx context.Context, callsign, method string, params json.RawMessage, gctx gateway.GatewayContext) (string, *gateway.RouteError)

// Invoke implements Client.
func (f FuncClient) Invoke(ctx context.Context, callsign, method string, params json.RawMessage, gctx gateway.GatewayContext) (string, *gateway.RouteError) {
    return f(ctx, callsign, method, params, gctx)
}
