// internal/gateway/server.go
// Server wires components A through G into one running gateway: the
// connection manager (D), the resolver engine (E) executing on the worker
// pool (C), the subscription fan-out (F), the identity/compliance
// registries (A), and the resolution table (B). Component G (telemetry)
// hooks in through small closures so this package never imports
// internal/telemetry, avoiding an import cycle between the two.
package gateway

import (
    "context"
    "encoding/json"
    "net"
    "net/http"

    "go.uber.org/zap"

    "github.com/kestrelgw/appgw/internal/gateway/subupstream"
    "github.com/kestrelgw/appgw/internal/logging"
)

// noopUpstream is installed until a real host-framework subscription
// surface is wired via Server.SetUpstream; every call fails with
// KindBackendUnavailable rather than silently succeeding.
type noopUpstream struct{}

func (noopUpstream) SubscribeToBackend(string, func(string, string)) error {
    return &RouteError{Kind: KindBackendUnavailable, Message: "subscription upstream not configured"}
}

func (noopUpstream) UnsubscribeFromBackend(string) error {
    return &RouteError{Kind: KindBackendUnavailable, Message: "subscription upstream not configured"}
}

// Authenticator is the authentication authority the server requires: token
// validation plus permission-group checks for the resulting AppId. Defined
// here (rather than importing pkg/auth) so any authority satisfying this
// shape — including pkg/auth.JWTAuthenticator — can be wired in.
type Authenticator interface {
    Authenticate(token string) (appID string, ok bool)
    CheckPermission(appID string, group string) bool
}

// authAdapter narrows Authenticator onto the AuthHandlerFunc/AuthAuthority
// shapes D and E consume, recording the resulting AppId in the identity
// registry on success (§4.D: "the callback itself is responsible for
// recording AppId").
type authAdapter struct {
    identity *IdentityRegistry
    authn    Authenticator
}

func (a *authAdapter) handshake(cid ConnectionId, token string) bool {
    appID, ok := a.authn.Authenticate(token)
    if !ok {
        return false
    }
    a.identity.Add(cid, AppId(appID))
    return true
}

func (a *authAdapter) CheckPermission(appID AppId, group string) bool {
    return a.authn.CheckPermission(string(appID), group)
}

// telemetryHooks are the closures component G wires in to observe D's
// connection lifecycle without this package importing internal/telemetry.
type telemetryHooks struct {
    setConnections func(int64)
    recordFrame    func()
    recordOutcome  func(success bool)
}

type telemetryObserver struct {
    hooks *telemetryHooks
    count int64
}

func (o *telemetryObserver) OnConnect() {
    o.count++
    if o.hooks.setConnections != nil {
        o.hooks.setConnections(o.count)
    }
}

func (o *telemetryObserver) OnDisconnect() {
    o.count--
    if o.hooks.setConnections != nil {
        o.hooks.setConnections(o.count)
    }
}

// OnFrame bumps total_calls: every inbound frame counts, whether or not it
// ever reaches a response (e.g. an identity-missing connection is closed
// before an outcome is recorded).
func (o *telemetryObserver) OnFrame() {
    if o.hooks.recordFrame != nil {
        o.hooks.recordFrame()
    }
}

// OnResponseOutcome records only success/failure; total_calls is not bumped
// here (see OnFrame).
func (o *telemetryObserver) OnResponseOutcome(ok bool) {
    if o.hooks.recordOutcome != nil {
        o.hooks.recordOutcome(ok)
    }
}

// Server is the top-level gateway process: one Manager, one Engine, their
// shared collaborators, and the HTTP listener that fronts them.
type Server struct {
    cfg Config

    identity   *IdentityRegistry
    compliance *ComplianceRegistry
    table      *TableHandle
    pool       *Pool
    subs       *Subscriptions
    manager    *Manager
    engine     *Engine
    hooks      *telemetryHooks

    httpSrv *http.Server
}

// NewServer constructs every component and wires them together, but does
// not yet bind a listener or start serving (call Start for that). table is
// the initially loaded resolution table (see LoadResolutionTable); authn is
// the authentication authority.
func NewServer(cfg Config, table *Table, authn Authenticator) *Server {
    identity := NewIdentityRegistry()
    compliance := NewComplianceRegistry()
    tableHandle := NewTableHandle(table)
    pool := NewPool(cfg.WorkerPoolSize)
    hooks := &telemetryHooks{}

    adapter := &authAdapter{identity: identity, authn: authn}

    manager := NewManager(ManagerConfig{
        ListenAddr:        cfg.ListenAddr,
        QuiescenceTimeout: cfg.QuiescenceTimeout,
    }, identity, compliance, &telemetryObserver{hooks: hooks})
    manager.SetAuthHandler(adapter.handshake)

    subs := NewSubscriptions(noopUpstream{}, manager, pool)

    engine := NewEngine(EngineConfig{SubscriptionSuffix: cfg.SubscriptionSuffix},
        identity, tableHandle, subs, manager, adapter)

    manager.SetMessageHandler(func(cid ConnectionId, method string, params json.RawMessage, reqID RequestId) {
        handle := engine.SelfHandle()
        pool.SubmitGuarded(handle, func() {
            engine.HandleMessage(cid, method, params, reqID)
        })
    })

    return &Server{
        cfg:        cfg,
        identity:   identity,
        compliance: compliance,
        table:      tableHandle,
        pool:       pool,
        subs:       subs,
        manager:    manager,
        engine:     engine,
        hooks:      hooks,
    }
}

// SetUpstream replaces the subscription fan-out's upstream surface. Must be
// called before the gateway takes subscribe traffic.
func (s *Server) SetUpstream(u Upstream) { s.subs.SetUpstream(u) }

// SetSharedSubscriptionStore points the subscription fan-out's
// upstream-dedup registry at a distributed backing (e.g. Redis), for
// deployments running more than one gateway instance behind the same host
// framework. Must be called before subscribe traffic starts.
func (s *Server) SetSharedSubscriptionStore(store subupstream.Store) { s.subs.SetSharedStore(store) }

// SetCommonHandler installs the in-process backend dispatcher.
func (s *Server) SetCommonHandler(h CommonHandler) { s.engine.SetCommonHandler(h) }

// SetRPCClient installs the secondary JSON-RPC bus client.
func (s *Server) SetRPCClient(c RPCClient) { s.engine.SetRPCClient(c) }

// OnDisconnect registers extra cleanup (e.g. the common-handler dispatcher's
// per-connection state) to run once per connection close, after this
// server's own identity/subscription bookkeeping.
func (s *Server) OnDisconnect(cleanup func(cid ConnectionId)) {
    s.manager.SetDisconnectHandler(func(cid ConnectionId) {
        s.identity.Remove(cid)
        s.subs.Cleanup(cid)
        if cleanup != nil {
            cleanup(cid)
        }
    })
}

// WireTelemetry connects component G's SetConnectionCount/total_calls/
// call-outcome recording to the manager's lifecycle observer, via closures
// so this package never imports internal/telemetry.
func (s *Server) WireTelemetry(setConnections func(int64), recordFrame func(), recordOutcome func(success bool)) {
    s.hooks.setConnections = setConnections
    s.hooks.recordFrame = recordFrame
    s.hooks.recordOutcome = recordOutcome
}

// ReloadTable atomically swaps the active resolution table (§4.B, §6).
func (s *Server) ReloadTable(t *Table) *Table { return s.table.Swap(t) }

// Start binds the HTTP listener and begins serving websocket connections in
// the background. It returns once the listener is bound.
func (s *Server) Start() error {
    mux := http.NewServeMux()
    s.manager.Start(mux)
    s.httpSrv = &http.Server{Addr: s.cfg.ListenAddr, Handler: mux}

    ln, err := net.Listen("tcp", s.cfg.ListenAddr)
    if err != nil {
        return err
    }
    go func() {
        logging.Sugar().Infow("gateway listening", "addr", s.cfg.ListenAddr)
        if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
            logging.Logger().Error("gateway serve exited", zap.Error(err))
        }
    }()
    return nil
}

// Shutdown executes the full §5 shutdown protocol: stop accepting new
// connections, neutralize D's callbacks and wait for in-flight upcalls,
// invalidate E/F's weak-self handles, then release backend references.
func (s *Server) Shutdown(ctx context.Context) error {
    if s.httpSrv != nil {
        _ = s.httpSrv.Shutdown(ctx)
    }
    s.manager.Shutdown()
    s.pool.Wait()
    s.subs.Shutdown()
    s.engine.Shutdown()
    return nil
}

// ConnectionCount reports the number of live websocket connections.
func (s *Server) ConnectionCount() int { return s.manager.ConnectionCount() }
