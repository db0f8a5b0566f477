package gateway

import "testing"

func TestIdentityRegistryAddGetRemove(t *testing.T) {
    r := NewIdentityRegistry()

    if _, ok := r.Get(1); ok {
        t.Fatalf("expected miss on empty registry")
    }

    r.Add(1, "app-a")
    appID, ok := r.Get(1)
    if !ok || appID != "app-a" {
        t.Fatalf("got (%q, %v), want (app-a, true)", appID, ok)
    }

    r.Add(1, "app-b")
    if appID, _ := r.Get(1); appID != "app-b" {
        t.Fatalf("overwrite failed, got %q", appID)
    }

    if n := r.Len(); n != 1 {
        t.Fatalf("Len() = %d, want 1", n)
    }

    r.Remove(1)
    if _, ok := r.Get(1); ok {
        t.Fatalf("expected miss after Remove")
    }
    r.Remove(1) // idempotent
}

func TestComplianceRegistryCheckAndAdd(t *testing.T) {
    r := NewComplianceRegistry()

    if r.IsCompliant(1) {
        t.Fatalf("unknown connection should be non-compliant by default")
    }

    cases := []struct {
        query string
        want  bool
    }{
        {"RPCV2=true", true},
        {"RPCV2=TRUE", true},
        {"RPCV2=false", false},
        {"", false},
        {"session=abc", false},
    }

    for i, c := range cases {
        cid := ConnectionId(i + 1)
        got := r.CheckAndAdd(cid, c.query)
        if got != c.want {
            t.Errorf("CheckAndAdd(%q) = %v, want %v", c.query, got, c.want)
        }
        if r.IsCompliant(cid) != c.want {
            t.Errorf("IsCompliant after CheckAndAdd(%q) = %v, want %v", c.query, r.IsCompliant(cid), c.want)
        }
    }

    r.Cleanup(1)
    if r.IsCompliant(1) {
        t.Fatalf("expected non-compliant after Cleanup")
    }
}
