// internal/telemetry/patterns.go
// Strict parsing of the literal metric-name patterns described in §4.G.
// All names begin with "AppGw_PluginName_<P>_" and end with one of six
// fixed suffixes. Parsing is strict: an ambiguous name (one that would
// match more than one pattern) is resolved by trying patterns in a fixed
// priority order and taking the first match — API method, then service
// method, then API latency, then service latency, then generic fallback
// (§8 boundary behavior).
package telemetry

import "regexp"

type matchKind int

const (
    matchNone matchKind = iota
    matchAPIMethodSuccess
    matchAPIMethodError
    matchServiceMethodSuccess
    matchServiceMethodError
    matchAPILatency
    matchServiceLatency
)

type nameMatch struct {
    kind   matchKind
    plugin string
    key    string // method, service, or api name
}

var (
    reAPIMethodSuccess     = regexp.MustCompile(`^AppGw_PluginName_(.+)_MethodName_(.+)_Success_split$`)
    reAPIMethodError       = regexp.MustCompile(`^AppGw_PluginName_(.+)_MethodName_(.+)_Error_split$`)
    reServiceMethodSuccess = regexp.MustCompile(`^AppGw_PluginName_(.+)_ServiceName_(.+)_Success_split$`)
    reServiceMethodError   = regexp.MustCompile(`^AppGw_PluginName_(.+)_ServiceName_(.+)_Error_split$`)
    reAPILatency           = regexp.MustCompile(`^AppGw_PluginName_(.+)_ApiName_(.+)_ApiLatency_split$`)
    reServiceLatency       = regexp.MustCompile(`^AppGw_PluginName_(.+)_ServiceName_(.+)_ServiceLatency_split$`)
)

// parseMetricName matches name against the six structured patterns in
// priority order. matchNone means the name falls through to metrics_cache.
func parseMetricName(name string) nameMatch {
    if m := reAPIMethodSuccess.FindStringSubmatch(name); m != nil {
        return nameMatch{kind: matchAPIMethodSuccess, plugin: m[1], key: m[2]}
    }
    if m := reAPIMethodError.FindStringSubmatch(name); m != nil {
        return nameMatch{kind: matchAPIMethodError, plugin: m[1], key: m[2]}
    }
    if m := reServiceMethodSuccess.FindStringSubmatch(name); m != nil {
        return nameMatch{kind: matchServiceMethodSuccess, plugin: m[1], key: m[2]}
    }
    if m := reServiceMethodError.FindStringSubmatch(name); m != nil {
        return nameMatch{kind: matchServiceMethodError, plugin: m[1], key: m[2]}
    }
    if m := reAPILatency.FindStringSubmatch(name); m != nil {
        return nameMatch{kind: matchAPILatency, plugin: m[1], key: m[2]}
    }
    if m := reServiceLatency.FindStringSubmatch(name); m != nil {
        return nameMatch{kind: matchServiceLatency, plugin: m[1], key: m[2]}
    }
    return nameMatch{kind: matchNone}
}

// statsKey is the "plugin|methodOrService" fingerprint used as a map key
// for both api_method_stats and service_method_stats (§GLOSSARY
// "Fingerprint").
func statsKey(plugin, key string) string { return plugin + "|" + key }
