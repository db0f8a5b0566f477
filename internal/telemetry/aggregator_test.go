package telemetry

import (
    "context"
    "encoding/json"
    "sync"
    "testing"
    "time"
)

type fakeSink struct {
    mu      sync.Mutex
    reports []Report
    events  []string
}

func (f *fakeSink) Send(ctx context.Context, report Report) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.reports = append(f.reports, report)
}

func (f *fakeSink) SendEvent(ctx context.Context, name string, jsonData json.RawMessage) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.events = append(f.events, name)
}

func (f *fakeSink) count() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.reports)
}

func (f *fakeSink) last() Report {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.reports[len(f.reports)-1]
}

func (f *fakeSink) eventCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.events)
}

func TestAggregatorRecordCallEventAccumulates(t *testing.T) {
    sink := &fakeSink{}
    agg := NewAggregator(Config{FlushInterval: time.Hour, CacheThreshold: 1000}, sink)

    agg.RecordFrame()
    agg.RecordCallEvent("devices", "getName", OutcomeSuccess, 10)
    agg.RecordFrame()
    agg.RecordCallEvent("devices", "getName", OutcomeSuccess, 20)
    agg.RecordFrame()
    agg.RecordCallEvent("devices", "getName", OutcomeError, 5)

    agg.Flush(context.Background())

    if sink.count() != 1 {
        t.Fatalf("expected exactly 1 flushed report, got %d", sink.count())
    }
    report := sink.last()
    if report.TotalCalls != 3 || report.SuccessfulCalls != 2 || report.FailedCalls != 1 {
        t.Fatalf("unexpected totals: %+v", report)
    }
    if len(report.APIMethodStats) != 1 {
        t.Fatalf("expected 1 api method stats entry, got %d", len(report.APIMethodStats))
    }
    stats := report.APIMethodStats[0]
    if stats.SuccessCount != 2 || stats.ErrorCount != 1 || stats.SuccessAvgMs != 15 {
        t.Fatalf("unexpected stats: %+v", stats)
    }
    if report.APIErrorCounts["devices|getName"] != 1 {
        t.Fatalf("expected 1 api error count, got %v", report.APIErrorCounts)
    }
}

func TestAggregatorFlushSuppressesEmptyReport(t *testing.T) {
    sink := &fakeSink{}
    agg := NewAggregator(Config{FlushInterval: time.Hour, CacheThreshold: 1000}, sink)
    agg.SetConnectionCount(5)

    agg.Flush(context.Background())

    if sink.count() != 0 {
        t.Fatalf("expected gauge-only flush to be suppressed, got %d reports", sink.count())
    }
}

func TestAggregatorFlushesAtCacheThreshold(t *testing.T) {
    sink := &fakeSink{}
    agg := NewAggregator(Config{FlushInterval: time.Hour, CacheThreshold: 3}, sink)

    agg.RecordCallEvent("devices", "getName", OutcomeSuccess, 1)
    agg.RecordCallEvent("devices", "getName", OutcomeSuccess, 1)
    if sink.count() != 0 {
        t.Fatalf("expected no flush before threshold, got %d", sink.count())
    }
    agg.RecordCallEvent("devices", "getName", OutcomeSuccess, 1)

    if sink.count() != 1 {
        t.Fatalf("expected threshold-triggered flush, got %d", sink.count())
    }
}

func TestAggregatorRecordMetricRoutesStructuredNameToLatencyStats(t *testing.T) {
    sink := &fakeSink{}
    agg := NewAggregator(Config{FlushInterval: time.Hour, CacheThreshold: 1000}, sink)

    agg.RecordMetric("AppGw_PluginName_devices_ApiName_getName_ApiLatency_split", 12.5, "ms")
    agg.RecordMetric("some.unrecognized.metric", 3, "count")
    agg.Flush(context.Background())

    report := sink.last()
    if len(report.APILatencyStats) != 1 {
        t.Fatalf("expected 1 api latency entry, got %d", len(report.APILatencyStats))
    }
    if report.APILatencyStats[0].Plugin != "devices" || report.APILatencyStats[0].Key != "getName" {
        t.Fatalf("unexpected api latency entry: %+v", report.APILatencyStats[0])
    }
    if len(report.Metrics) != 1 || report.Metrics[0].Name != "some.unrecognized.metric" {
        t.Fatalf("unexpected generic metrics: %+v", report.Metrics)
    }
}

func TestAggregatorConnectionGaugePersistsAcrossFlush(t *testing.T) {
    sink := &fakeSink{}
    agg := NewAggregator(Config{FlushInterval: time.Hour, CacheThreshold: 1000}, sink)
    agg.SetConnectionCount(7)

    agg.RecordCallEvent("devices", "getName", OutcomeSuccess, 1)
    agg.Flush(context.Background())
    if got := sink.last().WebsocketConnections; got != 7 {
        t.Fatalf("gauge = %d, want 7", got)
    }

    agg.RecordCallEvent("devices", "getName", OutcomeSuccess, 1)
    agg.Flush(context.Background())
    if got := sink.last().WebsocketConnections; got != 7 {
        t.Fatalf("gauge after second flush = %d, want 7 (unaffected by window reset)", got)
    }
}

func TestAggregatorRecordFrameCountsFramesWithoutAnOutcome(t *testing.T) {
    sink := &fakeSink{}
    agg := NewAggregator(Config{FlushInterval: time.Hour, CacheThreshold: 1000}, sink)

    agg.RecordFrame()
    agg.RecordFrame()
    agg.RecordCallEvent("devices", "getName", OutcomeSuccess, 1)
    agg.Flush(context.Background())

    report := sink.last()
    if report.TotalCalls != 3 {
        t.Fatalf("TotalCalls = %d, want 3 (2 bare frames + 1 resolved call)", report.TotalCalls)
    }
    if report.SuccessfulCalls != 1 {
        t.Fatalf("SuccessfulCalls = %d, want 1", report.SuccessfulCalls)
    }
}

func TestAggregatorRecordEventSentinelNamesBumpCountersAndForward(t *testing.T) {
    sink := &fakeSink{}
    agg := NewAggregator(Config{FlushInterval: time.Hour, CacheThreshold: 1000}, sink)

    agg.RecordEvent(EventAPIError, json.RawMessage(`{"api":"devices|getName"}`))
    agg.RecordEvent(EventExternalServiceError, json.RawMessage(`{"service":"devices|Auth"}`))

    if sink.eventCount() != 2 {
        t.Fatalf("expected 2 raw events forwarded, got %d", sink.eventCount())
    }

    agg.Flush(context.Background())
    report := sink.last()
    if report.APIErrorCounts["devices|getName"] != 1 {
        t.Fatalf("expected 1 api error count, got %v", report.APIErrorCounts)
    }
    if report.ServiceErrorCounts["devices|Auth"] != 1 {
        t.Fatalf("expected 1 service error count, got %v", report.ServiceErrorCounts)
    }
}

func TestAggregatorRecordEventGenericNameBumpsCachedEventCount(t *testing.T) {
    sink := &fakeSink{}
    agg := NewAggregator(Config{FlushInterval: time.Hour, CacheThreshold: 2}, sink)

    agg.RecordMetric("some.metric", 1, "count")
    if sink.count() != 0 {
        t.Fatalf("expected no flush before threshold, got %d", sink.count())
    }
    agg.RecordEvent("SomeOtherEvent", json.RawMessage(`{}`))

    if sink.count() != 1 {
        t.Fatalf("expected cached_event_count to trigger a flush at threshold, got %d reports", sink.count())
    }
    if sink.eventCount() != 0 {
        t.Fatalf("generic events are never forwarded directly, got %d", sink.eventCount())
    }
}

func TestAggregatorRunAndStopDrainsFinalFlush(t *testing.T) {
    sink := &fakeSink{}
    agg := NewAggregator(Config{FlushInterval: time.Hour, CacheThreshold: 1000}, sink)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    done := make(chan struct{})
    go func() {
        agg.Run(ctx)
        close(done)
    }()

    agg.RecordCallEvent("devices", "getName", OutcomeSuccess, 1)
    agg.Stop(context.Background())

    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatalf("Run did not exit after Stop")
    }

    if sink.count() != 1 {
        t.Fatalf("expected Stop to drain one final report, got %d", sink.count())
    }
}
