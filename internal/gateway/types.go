// internal/gateway/types.go
// Core value types shared by every component of the connection plane.  None
// of these hold locks or I/O handles; they are copied freely across
// goroutine boundaries the way the spec requires of GatewayContext.
package gateway

// ConnectionId uniquely identifies one WebSocket session for the lifetime of
// this process. Assigned by the connection manager at accept time from a
// monotonically increasing counter; wrapping is a programming error we do
// not attempt to guard against (2^32 live connections is not a realistic
// deployment).
type ConnectionId uint32

// RequestId is chosen by the client and is only meaningful scoped to one
// connection; the gateway never interprets it beyond correlating responses.
type RequestId uint32

// AppId is the short opaque identity string established once at
// authentication and held stable for the life of the connection.
type AppId string

// GatewayContext is passed by value into every backend dispatch. Callers
// must not retain a pointer to it across a suspension point; copy what you
// need instead.
type GatewayContext struct {
    RequestId        RequestId
    ConnectionId     ConnectionId
    AppId            AppId
    SessionToken     string
    AdditionalContext map[string]string
}

// withAdditionalContext returns a copy of ctx with the rule's additional
// context keys merged in. Merge never mutates the caller's map.
func (ctx GatewayContext) withAdditionalContext(extra map[string]string) GatewayContext {
    if len(extra) == 0 {
        return ctx
    }
    merged := make(map[string]string, len(ctx.AdditionalContext)+len(extra))
    for k, v := range ctx.AdditionalContext {
        merged[k] = v
    }
    for k, v := range extra {
        merged[k] = v
    }
    ctx.AdditionalContext = merged
    return ctx
}
