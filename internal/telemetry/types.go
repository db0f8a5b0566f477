// internal/telemetry/types.go
// Component G: the gateway's own telemetry aggregator. This file holds the
// plain data shapes; aggregator.go holds the concurrency-safe operations
// over them.
package telemetry

// MethodStats accumulates outcome counts and running latency statistics for
// one (plugin, method-or-service) key, reset at every flush (§3
// ApiMethodStats / ServiceMethodStats).
type MethodStats struct {
    SuccessCount uint64
    ErrorCount   uint64

    successSum float64
    successMin float64
    successMax float64
    hasSuccess bool

    errorSum float64
    errorMin float64
    errorMax float64
    hasError bool
}

func (s *MethodStats) recordSuccess(latencyMs float64) {
    s.SuccessCount++
    s.successSum += latencyMs
    if !s.hasSuccess || latencyMs < s.successMin {
        s.successMin = latencyMs
    }
    if !s.hasSuccess || latencyMs > s.successMax {
        s.successMax = latencyMs
    }
    s.hasSuccess = true
}

func (s *MethodStats) recordError(latencyMs float64) {
    s.ErrorCount++
    s.errorSum += latencyMs
    if !s.hasError || latencyMs < s.errorMin {
        s.errorMin = latencyMs
    }
    if !s.hasError || latencyMs > s.errorMax {
        s.errorMax = latencyMs
    }
    s.hasError = true
}

// MethodStatsSnapshot is the read-only, flush-time view of one MethodStats.
type MethodStatsSnapshot struct {
    Plugin         string  `json:"plugin"`
    Key            string  `json:"key"`
    SuccessCount   uint64  `json:"successCount"`
    ErrorCount     uint64  `json:"errorCount"`
    SuccessAvgMs   float64 `json:"successAvgMs"`
    SuccessMinMs   float64 `json:"successMinMs"`
    SuccessMaxMs   float64 `json:"successMaxMs"`
    ErrorAvgMs     float64 `json:"errorAvgMs"`
    ErrorMinMs     float64 `json:"errorMinMs"`
    ErrorMaxMs     float64 `json:"errorMaxMs"`
}

func (s *MethodStats) snapshot(plugin, key string) MethodStatsSnapshot {
    snap := MethodStatsSnapshot{Plugin: plugin, Key: key, SuccessCount: s.SuccessCount, ErrorCount: s.ErrorCount}
    if s.SuccessCount > 0 {
        snap.SuccessAvgMs = s.successSum / float64(s.SuccessCount)
        snap.SuccessMinMs = s.successMin
        snap.SuccessMaxMs = s.successMax
    }
    if s.ErrorCount > 0 {
        snap.ErrorAvgMs = s.errorSum / float64(s.ErrorCount)
        snap.ErrorMinMs = s.errorMin
        snap.ErrorMaxMs = s.errorMax
    }
    return snap
}

// MetricData is the generic fallback bucket for any recorded metric whose
// name does not match one of the structured patterns (§3, §4.G).
type MetricData struct {
    Sum   float64
    Min   float64
    Max   float64
    Count uint64
    Unit  string
    has   bool
}

func (m *MetricData) record(value float64, unit string) {
    m.Sum += value
    if !m.has || value < m.Min {
        m.Min = value
    }
    if !m.has || value > m.Max {
        m.Max = value
    }
    m.Count++
    m.Unit = unit
    m.has = true
}

// MetricSnapshot is the read-only, flush-time view of one MetricData.
type MetricSnapshot struct {
    Name  string  `json:"name"`
    Sum   float64 `json:"sum"`
    Min   float64 `json:"min"`
    Max   float64 `json:"max"`
    Count uint64  `json:"count"`
    Unit  string  `json:"unit"`
}

func (m *MetricData) snapshot(name string) MetricSnapshot {
    return MetricSnapshot{Name: name, Sum: m.Sum, Min: m.Min, Max: m.Max, Count: m.Count, Unit: m.Unit}
}

// Report is the full payload one flush produces (§4.G "serializes and
// transmits all categories").
type Report struct {
    BatchID               string                 `json:"batchId"`
    WebsocketConnections  int64                  `json:"websocketConnections"`
    TotalCalls            uint64                 `json:"totalCalls"`
    SuccessfulCalls       uint64                 `json:"successfulCalls"`
    FailedCalls           uint64                 `json:"failedCalls"`
    APIErrorCounts        map[string]uint32      `json:"apiErrorCounts,omitempty"`
    ServiceErrorCounts    map[string]uint32      `json:"serviceErrorCounts,omitempty"`
    APIMethodStats        []MethodStatsSnapshot  `json:"apiMethodStats,omitempty"`
    ServiceMethodStats    []MethodStatsSnapshot  `json:"serviceMethodStats,omitempty"`
    APILatencyStats       []MethodStatsSnapshot  `json:"apiLatencyStats,omitempty"`
    ServiceLatencyStats   []MethodStatsSnapshot  `json:"serviceLatencyStats,omitempty"`
    Metrics               []MetricSnapshot       `json:"metrics,omitempty"`
}

// IsEmpty reports whether this report carries no window data at all. The
// gauge (WebsocketConnections) does not count — §8: "the gauge is not
// emitted if zero data window" refers to suppressing a flush that would
// otherwise carry nothing but the unchanged gauge.
func (r Report) IsEmpty() bool {
    return r.TotalCalls == 0 &&
        len(r.APIErrorCounts) == 0 &&
        len(r.ServiceErrorCounts) == 0 &&
        len(r.APIMethodStats) == 0 &&
        len(r.ServiceMethodStats) == 0 &&
        len(r.APILatencyStats) == 0 &&
        len(r.ServiceLatencyStats) == 0 &&
        len(r.Metrics) == 0
}
