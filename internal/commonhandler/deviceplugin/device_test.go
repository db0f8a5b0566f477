package deviceplugin

import (
    "encoding/json"
    "testing"

    "github.com/kestrelgw/appgw/internal/gateway"
)

func TestDevicePluginNameGetAndSet(t *testing.T) {
    p := New("thermostat")
    ctx := gateway.GatewayContext{}

    out, err := p.Invoke(ctx, "device.name", nil)
    if err != nil {
        t.Fatalf("Invoke: %v", err)
    }
    if out != `"thermostat"` {
        t.Fatalf("out = %q, want %q", out, `"thermostat"`)
    }

    params, _ := json.Marshal(setNameParams{Name: "lamp"})
    if _, err := p.Invoke(ctx, "device.setName", params); err != nil {
        t.Fatalf("Invoke setName: %v", err)
    }

    out, _ = p.Invoke(ctx, "device.name", nil)
    if out != `"lamp"` {
        t.Fatalf("out after rename = %q, want %q", out, `"lamp"`)
    }
}

func TestDevicePluginSetNameRejectsBadParams(t *testing.T) {
    p := New("thermostat")
    _, err := p.Invoke(gateway.GatewayContext{}, "device.setName", json.RawMessage(`not json`))
    if err == nil {
        t.Fatalf("expected error for invalid params")
    }
    routeErr, ok := err.(*gateway.RouteError)
    if !ok || routeErr.Kind != gateway.KindBadRequest {
        t.Fatalf("err = %v, want *gateway.RouteError{Kind: KindBadRequest}", err)
    }
}

func TestDevicePluginSettingsAreScopedPerConnection(t *testing.T) {
    p := New("thermostat")
    connA := gateway.GatewayContext{ConnectionId: 1}
    connB := gateway.GatewayContext{ConnectionId: 2}

    setParams, _ := json.Marshal(setSettingParams{Key: "brightness", Value: "high"})
    if _, err := p.Invoke(connA, "device.setting.set", setParams); err != nil {
        t.Fatalf("Invoke setting.set: %v", err)
    }

    getParams, _ := json.Marshal(getSettingParams{Key: "brightness"})
    out, err := p.Invoke(connA, "device.setting.get", getParams)
    if err != nil {
        t.Fatalf("Invoke setting.get: %v", err)
    }
    if out != `"high"` {
        t.Fatalf("connA setting = %q, want %q", out, `"high"`)
    }

    out, _ = p.Invoke(connB, "device.setting.get", getParams)
    if out != `""` {
        t.Fatalf("connB should have no setting, got %q", out)
    }
}

func TestDevicePluginCleanupDropsConnectionSettings(t *testing.T) {
    p := New("thermostat")
    conn := gateway.GatewayContext{ConnectionId: 7}

    setParams, _ := json.Marshal(setSettingParams{Key: "k", Value: "v"})
    _, _ = p.Invoke(conn, "device.setting.set", setParams)

    p.Cleanup(7)

    getParams, _ := json.Marshal(getSettingParams{Key: "k"})
    out, _ := p.Invoke(conn, "device.setting.get", getParams)
    if out != `""` {
        t.Fatalf("expected setting cleared after Cleanup, got %q", out)
    }
}

func TestDevicePluginUnknownMethodReturnsMethodNotFound(t *testing.T) {
    p := New("thermostat")
    _, err := p.Invoke(gateway.GatewayContext{}, "device.bogus", nil)
    routeErr, ok := err.(*gateway.RouteError)
    if !ok || routeErr.Kind != gateway.KindMethodNotFound {
        t.Fatalf("err = %v, want *gateway.RouteError{Kind: KindMethodNotFound}", err)
    }
}
