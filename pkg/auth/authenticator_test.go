package auth

import (
    "testing"
    "time"
)

func newTestAuthenticator() *JWTAuthenticator {
    secret := []byte("top-secret")
    verifier := NewVerifier(secret, "appgw")
    return NewJWTAuthenticator(verifier)
}

func signToken(t *testing.T, subject string) string {
    t.Helper()
    signer := NewSigner([]byte("top-secret"), "appgw", time.Minute)
    token, err := signer.Sign(signer.Claims(subject, nil))
    if err != nil {
        t.Fatalf("Sign: %v", err)
    }
    return token
}

func TestJWTAuthenticatorAuthenticate(t *testing.T) {
    authn := newTestAuthenticator()
    token := signToken(t, "app-1")

    appID, ok := authn.Authenticate(token)
    if !ok || appID != "app-1" {
        t.Fatalf("Authenticate = (%q, %v), want (app-1, true)", appID, ok)
    }

    if _, ok := authn.Authenticate("not-a-jwt"); ok {
        t.Fatalf("expected garbage token to fail authentication")
    }
}

func TestJWTAuthenticatorGrantRevokeCheckPermission(t *testing.T) {
    authn := newTestAuthenticator()

    if authn.CheckPermission("app-1", "devices.read") {
        t.Fatalf("expected no permission before Grant")
    }

    authn.Grant("app-1", "devices.read")
    if !authn.CheckPermission("app-1", "devices.read") {
        t.Fatalf("expected permission after Grant")
    }
    if authn.CheckPermission("app-1", "devices.write") {
        t.Fatalf("expected no permission for ungranted group")
    }

    authn.Revoke("app-1", "devices.read")
    if authn.CheckPermission("app-1", "devices.read") {
        t.Fatalf("expected no permission after Revoke")
    }
}

func TestJWTAuthenticatorRevokeUnknownAppIsNoop(t *testing.T) {
    authn := newTestAuthenticator()
    authn.Revoke("unknown-app", "devices.read")
    if authn.CheckPermission("unknown-app", "devices.read") {
        t.Fatalf("expected no permission for unknown app")
    }
}
