// pkg/auth/authenticator.go
// Authenticator is the contract the connection manager and the router
// engine consume from the backing authentication authority (§6): validate a
// handshake session token into an AppId, and later answer permission-group
// checks for that app. The gateway core declares a structurally identical
// interface of its own (gateway.Authenticator), which JWTAuthenticator also
// satisfies — the authority itself (however it stores apps, grants,
// revocations) is an external collaborator per §1.
package auth

import "sync"

// Authenticator is implemented by the authentication authority.
type Authenticator interface {
    // Authenticate validates token and returns the resulting AppId.
    Authenticate(token string) (appID string, ok bool)
    // CheckPermission reports whether appID holds group.
    CheckPermission(appID string, group string) bool
}

// JWTAuthenticator authenticates session tokens as HMAC-signed JWTs via
// Verifier, and answers permission checks from a static, reloadable grant
// table (appID -> set of groups). It is a reasonable default authority for
// small/embedded deployments; larger deployments plug in their own
// Authenticator backed by a real policy service.
type JWTAuthenticator struct {
    verifier *Verifier

    mu     sync.RWMutex
    grants map[string]map[string]bool
}

// NewJWTAuthenticator wraps verifier with an in-memory grant table.
func NewJWTAuthenticator(verifier *Verifier) *JWTAuthenticator {
    return &JWTAuthenticator{verifier: verifier, grants: make(map[string]map[string]bool)}
}

// Authenticate parses and verifies token, returning the "sub" claim as the
// AppId on success.
func (a *JWTAuthenticator) Authenticate(token string) (string, bool) {
    claims, err := a.verifier.ParseAndVerify(token)
    if err != nil {
        return "", false
    }
    sub, ok := claims["sub"].(string)
    if !ok || sub == "" {
        return "", false
    }
    return sub, true
}

// Grant adds group to appID's permission set. Safe for concurrent use.
func (a *JWTAuthenticator) Grant(appID, group string) {
    a.mu.Lock()
    defer a.mu.Unlock()
    set, ok := a.grants[appID]
    if !ok {
        set = make(map[string]bool)
        a.grants[appID] = set
    }
    set[group] = true
}

// Revoke removes group from appID's permission set.
func (a *JWTAuthenticator) Revoke(appID, group string) {
    a.mu.Lock()
    defer a.mu.Unlock()
    if set, ok := a.grants[appID]; ok {
        delete(set, group)
    }
}

// CheckPermission reports whether appID holds group.
func (a *JWTAuthenticator) CheckPermission(appID string, group string) bool {
    a.mu.RLock()
    defer a.mu.RUnlock()
    return a.grants[appID][group]
}
