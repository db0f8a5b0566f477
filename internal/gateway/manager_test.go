package gateway

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/gorilla/websocket"
)

func newTestManagerServer(t *testing.T, m *Manager) (*httptest.Server, string) {
    t.Helper()
    mux := http.NewServeMux()
    m.Start(mux)
    srv := httptest.NewServer(mux)
    wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
    return srv, wsURL
}

func dial(t *testing.T, wsURL, session string) *websocket.Conn {
    t.Helper()
    url := wsURL
    if session != "" {
        sep := "?"
        if strings.Contains(url, "?") {
            sep = "&"
        }
        url += sep + "session=" + session
    }
    conn, _, err := websocket.DefaultDialer.Dial(url, nil)
    if err != nil {
        t.Fatalf("dial: %v", err)
    }
    return conn
}

func TestManagerRejectsFailedAuth(t *testing.T) {
    m := NewManager(ManagerConfig{}, NewIdentityRegistry(), NewComplianceRegistry(), nil)
    m.SetAuthHandler(func(cid ConnectionId, token string) bool { return false })

    srv, wsURL := newTestManagerServer(t, m)
    defer srv.Close()

    conn := dial(t, wsURL, "bad-token")
    defer conn.Close()

    conn.SetReadDeadline(time.Now().Add(2 * time.Second))
    if _, _, err := conn.ReadMessage(); err == nil {
        t.Fatalf("expected connection close after failed auth")
    }
}

func TestManagerAuthenticatedRoundTrip(t *testing.T) {
    identity := NewIdentityRegistry()
    m := NewManager(ManagerConfig{}, identity, NewComplianceRegistry(), nil)
    m.SetAuthHandler(func(cid ConnectionId, token string) bool {
        identity.Add(cid, AppId("app-1"))
        return token == "good-token"
    })

    var gotMethod string
    var gotReqID RequestId
    done := make(chan struct{}, 1)
    m.SetMessageHandler(func(cid ConnectionId, method string, params json.RawMessage, reqID RequestId) {
        gotMethod = method
        gotReqID = reqID
        m.Respond(cid, reqID, `"ok"`)
        done <- struct{}{}
    })

    srv, wsURL := newTestManagerServer(t, m)
    defer srv.Close()

    conn := dial(t, wsURL, "good-token")
    defer conn.Close()

    if err := conn.WriteJSON(map[string]any{"method": "device.name", "params": json.RawMessage("null"), "id": 7}); err != nil {
        t.Fatalf("WriteJSON: %v", err)
    }

    select {
    case <-done:
    case <-time.After(2 * time.Second):
        t.Fatalf("message handler was not invoked")
    }

    if gotMethod != "device.name" || gotReqID != 7 {
        t.Fatalf("got method=%q reqID=%d", gotMethod, gotReqID)
    }

    conn.SetReadDeadline(time.Now().Add(2 * time.Second))
    _, raw, err := conn.ReadMessage()
    if err != nil {
        t.Fatalf("ReadMessage: %v", err)
    }
    var resp responseEnvelopeV1
    if err := json.Unmarshal(raw, &resp); err != nil {
        t.Fatalf("Unmarshal: %v", err)
    }
    if resp.ID != 7 || resp.Result != `"ok"` {
        t.Fatalf("resp = %+v", resp)
    }
}

func TestManagerEncodesV2FramingForCompliantConnections(t *testing.T) {
    identity := NewIdentityRegistry()
    compliance := NewComplianceRegistry()
    m := NewManager(ManagerConfig{}, identity, compliance, nil)
    m.SetAuthHandler(func(cid ConnectionId, token string) bool {
        identity.Add(cid, AppId("app-1"))
        return true
    })

    msgReceived := make(chan ConnectionId, 1)
    m.SetMessageHandler(func(cid ConnectionId, method string, params json.RawMessage, reqID RequestId) {
        m.Respond(cid, reqID, "true")
        msgReceived <- cid
    })

    srv, wsURL := newTestManagerServer(t, m)
    defer srv.Close()

    conn := dial(t, wsURL+"?RPCV2=true", "tok")
    defer conn.Close()
    _ = conn.WriteJSON(map[string]any{"method": "x", "id": 1})

    select {
    case <-msgReceived:
    case <-time.After(2 * time.Second):
        t.Fatalf("message handler not invoked")
    }

    conn.SetReadDeadline(time.Now().Add(2 * time.Second))
    _, raw, err := conn.ReadMessage()
    if err != nil {
        t.Fatalf("ReadMessage: %v", err)
    }
    var resp responseEnvelopeV2
    if err := json.Unmarshal(raw, &resp); err != nil {
        t.Fatalf("Unmarshal: %v", err)
    }
    if resp.Type != "response" || resp.ID != 1 {
        t.Fatalf("resp = %+v", resp)
    }
}

func TestManagerDisconnectHandlerFiresOnClose(t *testing.T) {
    identity := NewIdentityRegistry()
    m := NewManager(ManagerConfig{}, identity, NewComplianceRegistry(), nil)
    m.SetAuthHandler(func(cid ConnectionId, token string) bool {
        identity.Add(cid, AppId("app-1"))
        return true
    })

    var mu sync.Mutex
    var disconnected ConnectionId
    fired := make(chan struct{}, 1)
    m.SetDisconnectHandler(func(cid ConnectionId) {
        mu.Lock()
        disconnected = cid
        mu.Unlock()
        fired <- struct{}{}
    })

    srv, wsURL := newTestManagerServer(t, m)
    defer srv.Close()

    conn := dial(t, wsURL, "tok")
    conn.Close()

    select {
    case <-fired:
    case <-time.After(2 * time.Second):
        t.Fatalf("disconnect handler not invoked")
    }

    mu.Lock()
    defer mu.Unlock()
    if disconnected == 0 {
        t.Fatalf("expected a non-zero connection id")
    }
}

func TestManagerShutdownClosesConnectionsAndNeutralizesHandlers(t *testing.T) {
    identity := NewIdentityRegistry()
    m := NewManager(ManagerConfig{QuiescenceTimeout: 50 * time.Millisecond}, identity, NewComplianceRegistry(), nil)
    m.SetAuthHandler(func(cid ConnectionId, token string) bool {
        identity.Add(cid, AppId("app-1"))
        return true
    })

    srv, wsURL := newTestManagerServer(t, m)
    defer srv.Close()

    conn := dial(t, wsURL, "tok")
    defer conn.Close()

    time.Sleep(50 * time.Millisecond) // let the handshake land before Shutdown
    m.Shutdown()

    if got := m.ConnectionCount(); got != 0 {
        t.Fatalf("ConnectionCount after Shutdown = %d, want 0", got)
    }

    conn.SetReadDeadline(time.Now().Add(2 * time.Second))
    if _, _, err := conn.ReadMessage(); err == nil {
        t.Fatalf("expected client to observe connection close after Shutdown")
    }
}
