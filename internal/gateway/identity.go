// internal/gateway/identity.go
// Component A: two small concurrency-safe maps keyed by ConnectionId. Both
// are pure in-memory and carry no durability — a restart of the gateway
// drops every entry, which is fine because a dropped connection has nothing
// left to reconcile.
package gateway

import (
    "net/url"
    "strings"
    "sync"
)

// IdentityRegistry maps a connection to the AppId established at
// authentication. Reads may observe a pre-add or post-remove state but
// never a torn value — every method takes the mutex for its whole body.
type IdentityRegistry struct {
    mu sync.RWMutex
    m  map[ConnectionId]AppId
}

// NewIdentityRegistry returns an empty registry ready for use.
func NewIdentityRegistry() *IdentityRegistry {
    return &IdentityRegistry{m: make(map[ConnectionId]AppId)}
}

// Add records appId for cid, overwriting any previous value.
func (r *IdentityRegistry) Add(cid ConnectionId, appID AppId) {
    r.mu.Lock()
    r.m[cid] = appID
    r.mu.Unlock()
}

// Get returns the AppId for cid, or ("", false) if absent.
func (r *IdentityRegistry) Get(cid ConnectionId) (AppId, bool) {
    r.mu.RLock()
    appID, ok := r.m[cid]
    r.mu.RUnlock()
    return appID, ok
}

// Remove deletes cid's entry. Removing a missing key is silent.
func (r *IdentityRegistry) Remove(cid ConnectionId) {
    r.mu.Lock()
    delete(r.m, cid)
    r.mu.Unlock()
}

// Len reports the number of tracked connections; used by tests and by the
// telemetry bridge's sanity checks, never on a hot path.
func (r *IdentityRegistry) Len() int {
    r.mu.RLock()
    n := len(r.m)
    r.mu.RUnlock()
    return n
}

// ComplianceRegistry tracks which connections speak the newer ("RPCV2")
// JSON-RPC dialect, derived once from the handshake query string and held
// for the life of the connection.
type ComplianceRegistry struct {
    mu sync.RWMutex
    m  map[ConnectionId]bool
}

// NewComplianceRegistry returns an empty registry.
func NewComplianceRegistry() *ComplianceRegistry {
    return &ComplianceRegistry{m: make(map[ConnectionId]bool)}
}

// rpcv2QueryParam is the well-known query parameter that marks a connection
// as speaking the v2 dialect (§6: "presence of RPCV2=true ... marks the
// connection as dialect-v2 compliant").
const rpcv2QueryParam = "RPCV2"

// CheckAndAdd inspects rawQuery (the handshake URL's query string) for the
// RPCV2 marker and records the resulting compliance flag for cid.
func (r *ComplianceRegistry) CheckAndAdd(cid ConnectionId, rawQuery string) bool {
    values, _ := url.ParseQuery(rawQuery)
    compliant := strings.EqualFold(values.Get(rpcv2QueryParam), "true")
    r.mu.Lock()
    r.m[cid] = compliant
    r.mu.Unlock()
    return compliant
}

// IsCompliant reports whether cid was recorded as speaking the v2 dialect.
// An unknown cid is treated as non-compliant (the conservative default).
func (r *ComplianceRegistry) IsCompliant(cid ConnectionId) bool {
    r.mu.RLock()
    compliant := r.m[cid]
    r.mu.RUnlock()
    return compliant
}

// Cleanup removes cid's compliance entry.
func (r *ComplianceRegistry) Cleanup(cid ConnectionId) {
    r.mu.Lock()
    delete(r.m, cid)
    r.mu.Unlock()
}
