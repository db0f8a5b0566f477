// internal/commonhandler/handler.go
// The "common handler" is the in-process backend invoked whenever a
// resolution rule sets UseDirectCall=true (§4.E step 6, first branch). Per
// §1 it is an external collaborator — device/settings/lifecycle command
// handling is out of this specification's scope — so this package only
// gives it a concrete, minimal shape: a small plugin registry (reusing
// internal/plugins, exactly the way the teacher's sampler plugins
// self-register) that the router's CommonHandler interface dispatches
// through by alias.
package commonhandler

import (
    "encoding/json"
    "sync"

    "github.com/kestrelgw/appgw/internal/gateway"
    "github.com/kestrelgw/appgw/internal/plugins"
)

// KindHandler is the plugins.Kind every common-handler component registers
// under.
const KindHandler plugins.Kind = "handler"

// DeviceHandler is implemented by an in-process component addressable by a
// resolution rule's alias.
type DeviceHandler interface {
    // Name is the alias this handler answers to.
    Name() string
    // Invoke executes method (the JSON-RPC method name from the original
    // client call, not the alias) with the given opaque params and returns
    // an opaque JSON result string.
    Invoke(ctx gateway.GatewayContext, method string, params json.RawMessage) (string, error)
}

// ConnectionAware is optionally implemented by a DeviceHandler that keeps
// per-connection state and needs to free it when a connection closes (§3:
// "the backend 'common handler' is notified to clean resources keyed by
// connectionId").
type ConnectionAware interface {
    Cleanup(cid gateway.ConnectionId)
}

type pluginAdapter struct{ h DeviceHandler }

func (p *pluginAdapter) Kind() plugins.Kind  { return KindHandler }
func (p *pluginAdapter) Name() string        { return p.h.Name() }
func (p *pluginAdapter) Init() (any, error)  { return p.h, nil }

// Register adds h to the shared plugin registry under KindHandler. Plugin
// packages call this from their own init() or from an explicit registration
// call at startup (as deviceplugin.Register does), mirroring the teacher's
// plugins.Register(&SQLTracePlugin{}) pattern.
func Register(h DeviceHandler) { plugins.Register(&pluginAdapter{h: h}) }

// Dispatcher implements gateway.CommonHandler by looking up a rule's alias
// against every DeviceHandler currently registered under KindHandler.
type Dispatcher struct {
    mu      sync.RWMutex
    byAlias map[string]DeviceHandler
}

// NewDispatcher builds a Dispatcher from the plugins currently registered.
// Call Reload after any late registration (e.g. dynamically loaded .so
// plugins via plugins.LoadShared).
func NewDispatcher() *Dispatcher {
    d := &Dispatcher{byAlias: make(map[string]DeviceHandler)}
    d.Reload()
    return d
}

// Reload rebuilds the alias index from the current plugin registry.
func (d *Dispatcher) Reload() {
    found := plugins.ByKind(KindHandler)
    byAlias := make(map[string]DeviceHandler, len(found))
    for _, p := range found {
        if adapter, ok := p.(*pluginAdapter); ok {
            byAlias[adapter.h.Name()] = adapter.h
        }
    }
    d.mu.Lock()
    d.byAlias = byAlias
    d.mu.Unlock()
}

// Call implements gateway.CommonHandler.
func (d *Dispatcher) Call(ctx gateway.GatewayContext, alias string, params json.RawMessage) (string, *gateway.RouteError) {
    d.mu.RLock()
    h, ok := d.byAlias[alias]
    d.mu.RUnlock()
    if !ok {
        return "", &gateway.RouteError{Kind: gateway.KindBackendUnavailable, Message: alias}
    }
    result, err := h.Invoke(ctx, alias, params)
    if err != nil {
        return "", &gateway.RouteError{Kind: gateway.KindBackendError, Message: err.Error()}
    }
    return result, nil
}

// Cleanup broadcasts a connection close to every registered handler that
// cares about per-connection state.
func (d *Dispatcher) Cleanup(cid gateway.ConnectionId) {
    d.mu.RLock()
    defer d.mu.RUnlock()
    for _, h := range d.byAlias {
        if aware, ok := h.(ConnectionAware); ok {
            aware.Cleanup(cid)
        }
    }
}
