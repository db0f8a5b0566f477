// internal/gateway/router.go
// Component E: the request router / resolver engine. Runs on a worker-pool
// goroutine (never on D's I/O thread) and executes the per-message
// algorithm of §4.E: look up identity, build a GatewayContext, special-case
// subscription-suffix methods into F, resolve the rule, check permission,
// dispatch to a backend, and correlate the result back onto the originating
// connection via D.
package gateway

import (
    "context"
    "encoding/json"

    "go.uber.org/zap"

    "github.com/kestrelgw/appgw/internal/logging"
)

// AuthAuthority is the subset of the authentication authority the engine
// consumes beyond the handshake-time authenticate() call, namely
// check_permission (§6).
type AuthAuthority interface {
    CheckPermission(appID AppId, group string) bool
}

// CommonHandler is the in-process backend invoked when a rule's
// UseDirectCall is true (§4.E step 6, first branch).
type CommonHandler interface {
    Call(ctx GatewayContext, method string, params json.RawMessage) (string, *RouteError)
}

// RPCClient is the secondary JSON-RPC bus invoked when UseDirectCall is
// false (§4.E step 6, second branch).
type RPCClient interface {
    Invoke(ctx context.Context, callsign, method string, params json.RawMessage, gctx GatewayContext) (string, *RouteError)
}

// Responder is the subset of component D the engine correlates results
// through. Implemented by *Manager.
type Responder interface {
    Respond(cid ConnectionId, reqID RequestId, payload string)
    RespondError(cid ConnectionId, reqID RequestId, env wireEnvelope)
    Emit(cid ConnectionId, method string, payload string)
    Close(cid ConnectionId, reason string)
}

// EngineConfig carries the few knobs the engine needs beyond its
// collaborators.
type EngineConfig struct {
    // SubscriptionSuffix is the well-known token that, appended to a method
    // name, converts the call into subscribe/unsubscribe (§4.E step 3,
    // §GLOSSARY "Subscription suffix"). Defaults to ".listen".
    SubscriptionSuffix string
}

// Engine implements component E.
type Engine struct {
    cfg EngineConfig

    identity *IdentityRegistry
    table    *TableHandle
    subs     *Subscriptions
    resp     Responder
    auth     AuthAuthority

    commonHandler CommonHandler
    rpcClient     RPCClient

    self *WeakOwner
}

// NewEngine wires the engine to its collaborators. commonHandler/rpcClient
// may be nil initially; the engine lazily tolerates a nil backend with
// KindBackendUnavailable rather than panicking, and callers may call
// SetCommonHandler/SetRPCClient once the backend connects (§3: "E holds
// weak references to backends; it re-acquires strong references lazily on
// first use").
func NewEngine(cfg EngineConfig, identity *IdentityRegistry, table *TableHandle, subs *Subscriptions, resp Responder, auth AuthAuthority) *Engine {
    if cfg.SubscriptionSuffix == "" {
        cfg.SubscriptionSuffix = ".listen"
    }
    return &Engine{
        cfg:      cfg,
        identity: identity,
        table:    table,
        subs:     subs,
        resp:     resp,
        auth:     auth,
        self:     NewWeakOwner(),
    }
}

// SelfHandle returns the weak handle jobs submitted on the engine's behalf
// should capture, per §4.C/§9's cooperative-cancellation pattern.
func (e *Engine) SelfHandle() WeakHandle { return e.self.Handle() }

// SetCommonHandler installs (or replaces) the in-process backend.
func (e *Engine) SetCommonHandler(h CommonHandler) { e.commonHandler = h }

// SetRPCClient installs (or replaces) the secondary JSON-RPC bus client.
func (e *Engine) SetRPCClient(c RPCClient) { e.rpcClient = c }

// Shutdown invalidates the engine's weak-self handle (step iv of §5) and
// releases its backend references (step v).
func (e *Engine) Shutdown() {
    e.self.Invalidate()
    e.commonHandler = nil
    e.rpcClient = nil
}

// HandleMessage is the entry point a job on pool C calls once per inbound
// frame. It must be invoked already off D's I/O thread.
func (e *Engine) HandleMessage(cid ConnectionId, method string, params json.RawMessage, reqID RequestId) {
    appID, ok := e.identity.Get(cid)
    if !ok {
        // The frame arrived before auth established state, or the entry was
        // reaped out from under us: close, no response (§4.E step 1).
        e.resp.Close(cid, "no identity for connection")
        return
    }

    gctx := GatewayContext{
        RequestId:         reqID,
        ConnectionId:      cid,
        AppId:             appID,
        AdditionalContext: nil,
    }

    if stripped, isSub := stripSubscriptionSuffix(method, e.cfg.SubscriptionSuffix); isSub {
        e.handleSubscriptionToggle(gctx, stripped, params)
        return
    }

    table := e.table.Load()
    rule, found := table.Lookup(method)
    if !found {
        e.resp.RespondError(cid, reqID, toWireEnvelope(newRouteError(KindMethodNotFound, method)))
        return
    }

    if rule.IncludeContext {
        gctx = gctx.withAdditionalContext(rule.AdditionalContext)
    }

    if rule.PermissionGroup != "" {
        if e.auth == nil || !e.auth.CheckPermission(appID, rule.PermissionGroup) {
            e.resp.RespondError(cid, reqID, toWireEnvelope(newRouteError(KindPermissionDenied, rule.PermissionGroup)))
            return
        }
    }

    payload, routeErr := e.dispatch(gctx, rule, params)
    e.correlate(cid, reqID, rule, payload, routeErr)
}

func (e *Engine) dispatch(ctx GatewayContext, rule ResolutionRule, params json.RawMessage) (string, *RouteError) {
    if rule.UseDirectCall {
        if e.commonHandler == nil {
            logging.Sugar().Warnw("common handler unavailable", "alias", rule.Alias)
            return "", newRouteError(KindBackendUnavailable, rule.Alias)
        }
        return e.commonHandler.Call(ctx, rule.Alias, params)
    }

    if e.rpcClient == nil {
        logging.Sugar().Warnw("rpc bus unavailable", "callsign", rule.Alias)
        return "", newRouteError(KindBackendUnavailable, rule.Alias)
    }
    return e.rpcClient.Invoke(context.Background(), rule.Alias, rule.Method, params, ctx)
}

// correlate sends the dispatch outcome back to the originating connection.
// We resolved the v1-vs-v2 "open question" (§9) by keeping event-style push
// delivery scoped to rules that are themselves event rules; every other
// response always goes through Respond/RespondError regardless of dialect,
// and only the wire *framing* (field names) varies by compliance, which
// Manager.encodeResponse already handles. This preserves per-request
// correlation (§8 invariant: at most one response per (connection,
// request id)) for the overwhelming majority of calls while still letting a
// v2 connection receive its own subscribe/unsubscribe acknowledgement as a
// regular response, matching §4.E step 3 ("Respond with success").
func (e *Engine) correlate(cid ConnectionId, reqID RequestId, rule ResolutionRule, payload string, routeErr *RouteError) {
    if routeErr != nil {
        logging.Logger().Error("backend dispatch failed",
            zap.String("method", rule.Method), zap.String("alias", rule.Alias), zap.String("kind", routeErr.Kind.String()))
        e.resp.RespondError(cid, reqID, toWireEnvelope(routeErr))
        return
    }
    e.resp.Respond(cid, reqID, payload)
}

type listenToggle struct {
    Listen bool `json:"listen"`
}

func (e *Engine) handleSubscriptionToggle(ctx GatewayContext, strippedMethod string, params json.RawMessage) {
    table := e.table.Load()
    rule, found := table.Lookup(strippedMethod)
    if !found {
        e.resp.RespondError(ctx.ConnectionId, ctx.RequestId, toWireEnvelope(newRouteError(KindMethodNotFound, strippedMethod)))
        return
    }
    event, ok := table.HasEvent(strippedMethod)
    if !ok {
        e.resp.RespondError(ctx.ConnectionId, ctx.RequestId, toWireEnvelope(newRouteError(KindBadRequest, "method has no event")))
        return
    }

    var toggle listenToggle
    enable := true
    if len(params) > 0 {
        if err := json.Unmarshal(params, &toggle); err == nil {
            enable = toggle.Listen
        }
    }

    var err error
    if enable {
        err = e.subs.Subscribe(event, ctx.ConnectionId, ctx.AppId, ctx.RequestId, rule.Alias)
    } else {
        err = e.subs.Unsubscribe(event, ctx.ConnectionId)
    }
    if err != nil {
        logging.Sugar().Warnw("subscription upstream failure", "event", event, "err", err)
        e.resp.RespondError(ctx.ConnectionId, ctx.RequestId, toWireEnvelope(newRouteError(KindBackendUnavailable, event)))
        return
    }
    e.resp.Respond(ctx.ConnectionId, ctx.RequestId, "true")
}

// stripSubscriptionSuffix reports whether method ends with suffix and, if
// so, returns the method with the suffix removed.
func stripSubscriptionSuffix(method, suffix string) (string, bool) {
    if len(method) <= len(suffix) {
        return "", false
    }
    if method[len(method)-len(suffix):] != suffix {
        return "", false
    }
    return method[:len(method)-len(suffix)], true
}
