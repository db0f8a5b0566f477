// internal/telemetry/aggregator.go
// Component G: the gateway's own telemetry aggregator. Counters and
// per-name statistics accumulate under a single mutex between flushes;
// a flush resets every window-scoped field and leaves the gauge alone
// (§4.G: "the connection gauge persists across flushes, everything else
// resets").
package telemetry

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    "github.com/kestrelgw/appgw/internal/logging"
    "github.com/kestrelgw/appgw/internal/util"
)

// Sentinel event names recognized by RecordEvent (§4.G record_event). Any
// other name just bumps cached_event_count.
const (
    EventAPIError             = "ApiError"
    EventExternalServiceError = "ExternalServiceError"
)

// sentinelEventPayload is the shape record_event parses the api/service
// field out of for the two sentinel event names.
type sentinelEventPayload struct {
    API     string `json:"api"`
    Service string `json:"service"`
}

// Sink receives a finished Report. Implementations must not block the
// aggregator's mutex; Flush hands the report off and returns immediately.
type Sink interface {
    Send(ctx context.Context, report Report)
}

// Config parameterises the aggregator's flush triggers (§4.G, §9 — decided
// startup-only, not hot-reloadable).
type Config struct {
    FlushInterval   time.Duration
    CacheThreshold  int // flush once cached_event_count reaches this
}

// Aggregator accumulates events and metrics and periodically flushes a
// Report to its Sink.
type Aggregator struct {
    cfg  Config
    sink Sink

    mu                 sync.Mutex
    connections        int64
    totalCalls         uint64
    successfulCalls    uint64
    failedCalls        uint64
    apiErrorCounts     map[string]uint32
    serviceErrorCounts map[string]uint32
    apiMethodStats     map[string]*MethodStats
    serviceMethodStats map[string]*MethodStats
    apiLatencyStats    map[string]*MethodStats
    serviceLatencyStats map[string]*MethodStats
    metrics            map[string]*MetricData
    cachedEventCount   int

    stopCh chan struct{}
    doneCh chan struct{}
}

// NewAggregator constructs an Aggregator with empty window state.
func NewAggregator(cfg Config, sink Sink) *Aggregator {
    if cfg.FlushInterval <= 0 {
        cfg.FlushInterval = 60 * time.Second
    }
    if cfg.CacheThreshold <= 0 {
        cfg.CacheThreshold = 500
    }
    return &Aggregator{
        cfg:    cfg,
        sink:   sink,
        stopCh: make(chan struct{}),
        doneCh: make(chan struct{}),
    }
}

func (a *Aggregator) resetLocked() {
    a.totalCalls = 0
    a.successfulCalls = 0
    a.failedCalls = 0
    a.apiErrorCounts = nil
    a.serviceErrorCounts = nil
    a.apiMethodStats = nil
    a.serviceMethodStats = nil
    a.apiLatencyStats = nil
    a.serviceLatencyStats = nil
    a.metrics = nil
    a.cachedEventCount = 0
}

// SetConnectionCount updates the persistent websocket_connections gauge
// (§3). Called by the connection manager on connect/disconnect.
func (a *Aggregator) SetConnectionCount(n int64) {
    a.mu.Lock()
    a.connections = n
    a.mu.Unlock()
}

// Outcome classifies a recorded RPC call event.
type Outcome int

const (
    OutcomeSuccess Outcome = iota
    OutcomeError
)

// RecordEvent implements record_event (§4.G): the two sentinel event names
// (API error, external-service error) parse the api/service field out of
// jsonData, bump the matching error counter, and forward the raw event
// immediately to the sink for forensics — bypassing the normal flush
// cadence entirely. Any other name just bumps cached_event_count, which may
// itself trigger a flush at threshold.
func (a *Aggregator) RecordEvent(name string, jsonData json.RawMessage) {
    switch name {
    case EventAPIError:
        var payload sentinelEventPayload
        _ = json.Unmarshal(jsonData, &payload)
        a.mu.Lock()
        if a.apiErrorCounts == nil {
            a.apiErrorCounts = make(map[string]uint32)
        }
        a.apiErrorCounts[payload.API]++
        a.mu.Unlock()
        a.forward(name, jsonData)
    case EventExternalServiceError:
        var payload sentinelEventPayload
        _ = json.Unmarshal(jsonData, &payload)
        a.mu.Lock()
        if a.serviceErrorCounts == nil {
            a.serviceErrorCounts = make(map[string]uint32)
        }
        a.serviceErrorCounts[payload.Service]++
        a.mu.Unlock()
        a.forward(name, jsonData)
    default:
        a.mu.Lock()
        a.cachedEventCount++
        shouldFlush := a.cachedEventCount >= a.cfg.CacheThreshold
        a.mu.Unlock()
        if shouldFlush {
            a.Flush(context.Background())
        }
    }
}

// forward hands a raw event straight to the sink, if it implements
// EventSink, without waiting for the next scheduled flush.
func (a *Aggregator) forward(name string, jsonData json.RawMessage) {
    if a.sink == nil {
        return
    }
    if es, ok := a.sink.(EventSink); ok {
        es.SendEvent(context.Background(), name, jsonData)
    }
}

// RecordFrame bumps total_calls for every inbound frame the connection
// manager reads, independent of whether the frame ever produces a response
// (§4.D: "total_calls +1 on every inbound frame" — a frame with no resolved
// identity is closed before an outcome is ever recorded, but it still
// counts here).
func (a *Aggregator) RecordFrame() {
    a.mu.Lock()
    a.totalCalls++
    a.mu.Unlock()
}

// RecordCallEvent folds one completed API-surface call's outcome into the
// running success/error totals and latency stats (§4.G record_event,
// API-call branch). plugin/method identify the resolved alias; latencyMs is
// the observed round-trip time. total_calls itself is bumped by RecordFrame,
// not here, since not every frame reaches an outcome.
func (a *Aggregator) RecordCallEvent(plugin, method string, outcome Outcome, latencyMs float64) {
    a.mu.Lock()
    key := statsKey(plugin, method)
    switch outcome {
    case OutcomeSuccess:
        a.successfulCalls++
        if a.apiMethodStats == nil {
            a.apiMethodStats = make(map[string]*MethodStats)
        }
        stats, ok := a.apiMethodStats[key]
        if !ok {
            stats = &MethodStats{}
            a.apiMethodStats[key] = stats
        }
        stats.recordSuccess(latencyMs)
    case OutcomeError:
        a.failedCalls++
        if a.apiErrorCounts == nil {
            a.apiErrorCounts = make(map[string]uint32)
        }
        a.apiErrorCounts[key]++
        if a.apiMethodStats == nil {
            a.apiMethodStats = make(map[string]*MethodStats)
        }
        stats, ok := a.apiMethodStats[key]
        if !ok {
            stats = &MethodStats{}
            a.apiMethodStats[key] = stats
        }
        stats.recordError(latencyMs)
    }
    a.cachedEventCount++
    shouldFlush := a.cachedEventCount >= a.cfg.CacheThreshold
    a.mu.Unlock()

    if shouldFlush {
        a.Flush(context.Background())
    }
}

// RecordServiceEvent folds one completed backend (service-call) event into
// the running totals, mirroring RecordCallEvent for the service side.
func (a *Aggregator) RecordServiceEvent(plugin, service string, outcome Outcome, latencyMs float64) {
    a.mu.Lock()
    key := statsKey(plugin, service)
    switch outcome {
    case OutcomeSuccess:
        if a.serviceMethodStats == nil {
            a.serviceMethodStats = make(map[string]*MethodStats)
        }
        stats, ok := a.serviceMethodStats[key]
        if !ok {
            stats = &MethodStats{}
            a.serviceMethodStats[key] = stats
        }
        stats.recordSuccess(latencyMs)
    case OutcomeError:
        if a.serviceErrorCounts == nil {
            a.serviceErrorCounts = make(map[string]uint32)
        }
        a.serviceErrorCounts[key]++
        if a.serviceMethodStats == nil {
            a.serviceMethodStats = make(map[string]*MethodStats)
        }
        stats, ok := a.serviceMethodStats[key]
        if !ok {
            stats = &MethodStats{}
            a.serviceMethodStats[key] = stats
        }
        stats.recordError(latencyMs)
    }
    a.cachedEventCount++
    shouldFlush := a.cachedEventCount >= a.cfg.CacheThreshold
    a.mu.Unlock()

    if shouldFlush {
        a.Flush(context.Background())
    }
}

// RecordMetric implements record_metric (§4.G): name is parsed against the
// structured patterns in priority order; a match routes the value into the
// matching latency-stats bucket, anything else lands in the generic
// metrics_cache keyed by the raw name.
func (a *Aggregator) RecordMetric(name string, value float64, unit string) {
    m := parseMetricName(name)

    a.mu.Lock()
    switch m.kind {
    case matchAPIMethodSuccess:
        a.recordLatencyLocked(&a.apiMethodStats, m.plugin, m.key, value, true)
    case matchAPIMethodError:
        a.recordLatencyLocked(&a.apiMethodStats, m.plugin, m.key, value, false)
    case matchServiceMethodSuccess:
        a.recordLatencyLocked(&a.serviceMethodStats, m.plugin, m.key, value, true)
    case matchServiceMethodError:
        a.recordLatencyLocked(&a.serviceMethodStats, m.plugin, m.key, value, false)
    case matchAPILatency:
        a.recordLatencyLocked(&a.apiLatencyStats, m.plugin, m.key, value, true)
    case matchServiceLatency:
        a.recordLatencyLocked(&a.serviceLatencyStats, m.plugin, m.key, value, true)
    default:
        if a.metrics == nil {
            a.metrics = make(map[string]*MetricData)
        }
        md, ok := a.metrics[name]
        if !ok {
            md = &MetricData{}
            a.metrics[name] = md
        }
        md.record(value, unit)
    }
    a.cachedEventCount++
    shouldFlush := a.cachedEventCount >= a.cfg.CacheThreshold
    a.mu.Unlock()

    if shouldFlush {
        a.Flush(context.Background())
    }
}

func (a *Aggregator) recordLatencyLocked(bucket *map[string]*MethodStats, plugin, key string, value float64, success bool) {
    if *bucket == nil {
        *bucket = make(map[string]*MethodStats)
    }
    k := statsKey(plugin, key)
    stats, ok := (*bucket)[k]
    if !ok {
        stats = &MethodStats{}
        (*bucket)[k] = stats
    }
    if success {
        stats.recordSuccess(value)
    } else {
        stats.recordError(value)
    }
}

// Flush builds a Report from current state, resets the window, and hands
// the report to the sink. A report carrying no window data is suppressed
// (§8) — the gauge alone never triggers a send.
func (a *Aggregator) Flush(ctx context.Context) {
    a.mu.Lock()
    report := Report{
        BatchID:              util.MustNew(),
        WebsocketConnections: a.connections,
        TotalCalls:           a.totalCalls,
        SuccessfulCalls:      a.successfulCalls,
        FailedCalls:          a.failedCalls,
        APIErrorCounts:       a.apiErrorCounts,
        ServiceErrorCounts:   a.serviceErrorCounts,
        APIMethodStats:       snapshotBucket(a.apiMethodStats),
        ServiceMethodStats:   snapshotBucket(a.serviceMethodStats),
        APILatencyStats:      snapshotBucket(a.apiLatencyStats),
        ServiceLatencyStats:  snapshotBucket(a.serviceLatencyStats),
        Metrics:              snapshotMetrics(a.metrics),
    }
    a.resetLocked()
    a.mu.Unlock()

    if report.IsEmpty() {
        return
    }
    if a.sink != nil {
        a.sink.Send(ctx, report)
    }
}

func snapshotBucket(bucket map[string]*MethodStats) []MethodStatsSnapshot {
    if len(bucket) == 0 {
        return nil
    }
    out := make([]MethodStatsSnapshot, 0, len(bucket))
    for k, stats := range bucket {
        plugin, key := splitStatsKey(k)
        out = append(out, stats.snapshot(plugin, key))
    }
    return out
}

func snapshotMetrics(metrics map[string]*MetricData) []MetricSnapshot {
    if len(metrics) == 0 {
        return nil
    }
    out := make([]MetricSnapshot, 0, len(metrics))
    for name, md := range metrics {
        out = append(out, md.snapshot(name))
    }
    return out
}

func splitStatsKey(k string) (plugin, key string) {
    for i := 0; i < len(k); i++ {
        if k[i] == '|' {
            return k[:i], k[i+1:]
        }
    }
    return k, ""
}

// Run starts the periodic flush timer; it blocks until Stop is called or
// ctx is cancelled, so callers run it in its own goroutine.
func (a *Aggregator) Run(ctx context.Context) {
    defer close(a.doneCh)
    ticker := time.NewTicker(a.cfg.FlushInterval)
    defer ticker.Stop()
    for {
        select {
        case <-ticker.C:
            a.Flush(ctx)
        case <-a.stopCh:
            return
        case <-ctx.Done():
            return
        }
    }
}

// Stop ends the periodic flush loop, performs one final flush to drain any
// cached window data, and waits for Run to exit.
func (a *Aggregator) Stop(ctx context.Context) {
    close(a.stopCh)
    <-a.doneCh
    a.Flush(ctx)
    logging.Sugar().Debugw("telemetry aggregator stopped")
}
