// internal/telemetry/format.go
// Two on-the-wire renderings of a Report (§4.G): JSON (the default,
// exactly the struct's json tags) and Compact, a single-line
// key=value form intended for log-line sinks. Compact prints a value
// that is a whole number without a decimal point and anything else to
// two decimal places; JSON numbers use encoding/json's own formatting.
package telemetry

import (
    "encoding/json"
    "fmt"
    "math"
    "sort"
    "strconv"
    "strings"
)

// Format selects a Report rendering.
type Format int

const (
    FormatJSON Format = iota
    FormatCompact
)

// ParseFormat maps a config string onto a Format, defaulting to JSON for
// anything unrecognized.
func ParseFormat(s string) Format {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "compact":
        return FormatCompact
    default:
        return FormatJSON
    }
}

// Render serializes report per f.
func Render(f Format, report Report) ([]byte, error) {
    switch f {
    case FormatCompact:
        return []byte(renderCompact(report)), nil
    default:
        return json.Marshal(report)
    }
}

func renderCompact(r Report) string {
    var b strings.Builder
    fmt.Fprintf(&b, "batch=%s conns=%s total=%s ok=%s err=%s",
        r.BatchID, num(float64(r.WebsocketConnections)), num(float64(r.TotalCalls)),
        num(float64(r.SuccessfulCalls)), num(float64(r.FailedCalls)))

    writeCountMap(&b, "apiErr", r.APIErrorCounts)
    writeCountMap(&b, "svcErr", r.ServiceErrorCounts)
    writeStats(&b, "apiMethod", r.APIMethodStats)
    writeStats(&b, "svcMethod", r.ServiceMethodStats)
    writeStats(&b, "apiLatency", r.APILatencyStats)
    writeStats(&b, "svcLatency", r.ServiceLatencyStats)
    writeMetrics(&b, r.Metrics)
    return b.String()
}

func writeCountMap(b *strings.Builder, label string, m map[string]uint32) {
    if len(m) == 0 {
        return
    }
    keys := make([]string, 0, len(m))
    for k := range m {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    for _, k := range keys {
        fmt.Fprintf(b, " %s.%s=%s", label, k, num(float64(m[k])))
    }
}

func writeStats(b *strings.Builder, label string, stats []MethodStatsSnapshot) {
    if len(stats) == 0 {
        return
    }
    sorted := append([]MethodStatsSnapshot(nil), stats...)
    sort.Slice(sorted, func(i, j int) bool { return sorted[i].Plugin+sorted[i].Key < sorted[j].Plugin+sorted[j].Key })
    for _, s := range sorted {
        fmt.Fprintf(b, " %s.%s.%s.ok=%s,okAvg=%s,errCount=%s,errAvg=%s",
            label, s.Plugin, s.Key, num(float64(s.SuccessCount)), num(s.SuccessAvgMs),
            num(float64(s.ErrorCount)), num(s.ErrorAvgMs))
    }
}

func writeMetrics(b *strings.Builder, metrics []MetricSnapshot) {
    if len(metrics) == 0 {
        return
    }
    sorted := append([]MetricSnapshot(nil), metrics...)
    sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
    for _, m := range sorted {
        fmt.Fprintf(b, " metric.%s=%s(%s,n=%s)", m.Name, num(m.Sum), m.Unit, num(float64(m.Count)))
    }
}

// num renders v without a decimal point when it has no fractional part,
// otherwise to two decimal places (§4.G, §8).
func num(v float64) string {
    if math.Trunc(v) == v && !math.IsInf(v, 0) {
        return strconv.FormatInt(int64(v), 10)
    }
    return strconv.FormatFloat(v, 'f', 2, 64)
}
