package telemetry

import "testing"

func TestParseMetricNameStructuredPatterns(t *testing.T) {
    cases := []struct {
        name       string
        wantKind   matchKind
        wantPlugin string
        wantKey    string
    }{
        {"AppGw_PluginName_devices_MethodName_getName_Success_split", matchAPIMethodSuccess, "devices", "getName"},
        {"AppGw_PluginName_devices_MethodName_getName_Error_split", matchAPIMethodError, "devices", "getName"},
        {"AppGw_PluginName_devices_ServiceName_telemetry_Success_split", matchServiceMethodSuccess, "devices", "telemetry"},
        {"AppGw_PluginName_devices_ServiceName_telemetry_Error_split", matchServiceMethodError, "devices", "telemetry"},
        {"AppGw_PluginName_devices_ApiName_getName_ApiLatency_split", matchAPILatency, "devices", "getName"},
        {"AppGw_PluginName_devices_ServiceName_telemetry_ServiceLatency_split", matchServiceLatency, "devices", "telemetry"},
        {"not_a_recognized_metric_name", matchNone, "", ""},
    }

    for _, c := range cases {
        got := parseMetricName(c.name)
        if got.kind != c.wantKind {
            t.Errorf("parseMetricName(%q).kind = %v, want %v", c.name, got.kind, c.wantKind)
        }
        if got.kind == matchNone {
            continue
        }
        if got.plugin != c.wantPlugin || got.key != c.wantKey {
            t.Errorf("parseMetricName(%q) = (%q, %q), want (%q, %q)", c.name, got.plugin, got.key, c.wantPlugin, c.wantKey)
        }
    }
}

func TestParseMetricNamePriorityOrderOnAmbiguousName(t *testing.T) {
    // A service-method error name must not be swallowed by the API-method
    // patterns that are tried before it.
    name := "AppGw_PluginName_devices_ServiceName_telemetry_Error_split"
    got := parseMetricName(name)
    if got.kind != matchServiceMethodError {
        t.Fatalf("got kind %v, want matchServiceMethodError", got.kind)
    }

    // This name matches both the API-method and the service-method success
    // patterns; the API-method pattern is tried first and wins.
    ambiguous := "AppGw_PluginName_devices_MethodName_getName_ServiceName_telemetry_Success_split"
    if got := parseMetricName(ambiguous); got.kind != matchAPIMethodSuccess {
        t.Fatalf("got kind %v, want matchAPIMethodSuccess", got.kind)
    }
}

func TestStatsKeyFingerprint(t *testing.T) {
    if got := statsKey("devices", "getName"); got != "devices|getName" {
        t.Fatalf("statsKey = %q", got)
    }
}
