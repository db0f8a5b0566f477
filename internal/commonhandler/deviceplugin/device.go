// internal/commonhandler/deviceplugin/device.go
// Example common-handler plugin answering the "device" alias used in the
// happy-path scenario of §8: device.name, device.setName and a settings
// get/set pair exercising per-connection cleanup. It holds no subscription
// notifier and publishes no events. This mirrors the teacher's
// internal/plugins/example/sqltrace self-registering plugin, adapted from
// a profiling sampler to a gateway command handler.
package deviceplugin

import (
    "encoding/json"
    "sync"

    "github.com/kestrelgw/appgw/internal/commonhandler"
    "github.com/kestrelgw/appgw/internal/gateway"
)

// DevicePlugin answers the "device" alias.
type DevicePlugin struct {
    mu   sync.RWMutex
    name string

    settingsMu sync.Mutex
    settings   map[gateway.ConnectionId]map[string]string
}

// New returns a DevicePlugin with an initial device name.
func New(initialName string) *DevicePlugin {
    return &DevicePlugin{
        name:     initialName,
        settings: make(map[gateway.ConnectionId]map[string]string),
    }
}

// Name implements commonhandler.DeviceHandler.
func (p *DevicePlugin) Name() string { return "device" }

type setNameParams struct {
    Name string `json:"name"`
}

type getSettingParams struct {
    Key string `json:"key"`
}

type setSettingParams struct {
    Key   string `json:"key"`
    Value string `json:"value"`
}

// Invoke implements commonhandler.DeviceHandler. method is the original
// client-visible JSON-RPC method name (e.g. "device.name",
// "device.setName", "device.setting.get").
func (p *DevicePlugin) Invoke(ctx gateway.GatewayContext, method string, params json.RawMessage) (string, error) {
    switch method {
    case "device.name":
        p.mu.RLock()
        name := p.name
        p.mu.RUnlock()
        b, _ := json.Marshal(name)
        return string(b), nil

    case "device.setName":
        var req setNameParams
        if err := json.Unmarshal(params, &req); err != nil {
            return "", &gateway.RouteError{Kind: gateway.KindBadRequest, Message: "invalid params"}
        }
        p.mu.Lock()
        p.name = req.Name
        p.mu.Unlock()
        return "true", nil

    case "device.setting.get":
        var req getSettingParams
        _ = json.Unmarshal(params, &req)
        p.settingsMu.Lock()
        val := p.settings[ctx.ConnectionId][req.Key]
        p.settingsMu.Unlock()
        b, _ := json.Marshal(val)
        return string(b), nil

    case "device.setting.set":
        var req setSettingParams
        if err := json.Unmarshal(params, &req); err != nil {
            return "", &gateway.RouteError{Kind: gateway.KindBadRequest, Message: "invalid params"}
        }
        p.settingsMu.Lock()
        if p.settings[ctx.ConnectionId] == nil {
            p.settings[ctx.ConnectionId] = make(map[string]string)
        }
        p.settings[ctx.ConnectionId][req.Key] = req.Value
        p.settingsMu.Unlock()
        return "true", nil

    default:
        return "", &gateway.RouteError{Kind: gateway.KindMethodNotFound, Message: method}
    }
}

// Cleanup implements commonhandler.ConnectionAware: per-connection settings
// are dropped when the connection closes.
func (p *DevicePlugin) Cleanup(cid gateway.ConnectionId) {
    p.settingsMu.Lock()
    delete(p.settings, cid)
    p.settingsMu.Unlock()
}

// Register installs a DevicePlugin instance into the shared common-handler
// registry. Call from the binary's init/startup path; unlike the teacher's
// sqltrace example this is NOT called from this package's own init(),
// because the initial device name is deployment-specific configuration.
func Register(initialName string) *DevicePlugin {
    p := New(initialName)
    commonhandler.Register(p)
    return p
}
