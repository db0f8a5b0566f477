package telemetry

import (
    "encoding/json"
    "strings"
    "testing"
)

func TestParseFormat(t *testing.T) {
    cases := map[string]Format{
        "compact": FormatCompact,
        "Compact": FormatCompact,
        "  compact ": FormatCompact,
        "json":    FormatJSON,
        "":        FormatJSON,
        "bogus":   FormatJSON,
    }
    for in, want := range cases {
        if got := ParseFormat(in); got != want {
            t.Errorf("ParseFormat(%q) = %v, want %v", in, got, want)
        }
    }
}

func TestNumWholeVsFractional(t *testing.T) {
    cases := []struct {
        in   float64
        want string
    }{
        {0, "0"},
        {5, "5"},
        {-3, "-3"},
        {1.5, "1.50"},
        {0.333333, "0.33"},
    }
    for _, c := range cases {
        if got := num(c.in); got != c.want {
            t.Errorf("num(%v) = %q, want %q", c.in, got, c.want)
        }
    }
}

func TestRenderJSONRoundTrips(t *testing.T) {
    report := Report{
        BatchID:         "batch-1",
        TotalCalls:      3,
        SuccessfulCalls: 2,
        FailedCalls:     1,
        APIErrorCounts:  map[string]uint32{"devices|getName": 1},
    }
    out, err := Render(FormatJSON, report)
    if err != nil {
        t.Fatalf("Render: %v", err)
    }
    var decoded Report
    if err := json.Unmarshal(out, &decoded); err != nil {
        t.Fatalf("Unmarshal: %v", err)
    }
    if decoded.BatchID != report.BatchID || decoded.TotalCalls != report.TotalCalls {
        t.Fatalf("round trip mismatch: %+v", decoded)
    }
}

func TestRenderCompactIncludesAllSections(t *testing.T) {
    report := Report{
        BatchID:            "batch-2",
        WebsocketConnections: 4,
        TotalCalls:         10,
        SuccessfulCalls:    9,
        FailedCalls:        1,
        APIErrorCounts:     map[string]uint32{"devices|getName": 1},
        ServiceErrorCounts: map[string]uint32{"devices|telemetry": 2},
        APIMethodStats: []MethodStatsSnapshot{
            {Plugin: "devices", Key: "getName", SuccessCount: 9, SuccessAvgMs: 1.5, ErrorCount: 1, ErrorAvgMs: 2},
        },
        Metrics: []MetricSnapshot{
            {Name: "custom.metric", Sum: 42, Unit: "ms", Count: 3},
        },
    }
    out, err := Render(FormatCompact, report)
    if err != nil {
        t.Fatalf("Render: %v", err)
    }
    s := string(out)

    for _, want := range []string{
        "batch=batch-2",
        "conns=4",
        "total=10",
        "ok=9",
        "err=1",
        "apiErr.devices|getName=1",
        "svcErr.devices|telemetry=2",
        "apiMethod.devices.getName.ok=9,okAvg=1.50,errCount=1,errAvg=2",
        "metric.custom.metric=42(ms,n=3)",
    } {
        if !strings.Contains(s, want) {
            t.Errorf("compact output missing %q; got %q", want, s)
        }
    }
}

func TestRenderCompactOmitsEmptySections(t *testing.T) {
    report := Report{BatchID: "batch-3", TotalCalls: 1, SuccessfulCalls: 1}
    out, err := Render(FormatCompact, report)
    if err != nil {
        t.Fatalf("Render: %v", err)
    }
    s := string(out)
    for _, absent := range []string{"apiErr", "svcErr", "apiMethod", "svcMethod", "apiLatency", "svcLatency", "metric."} {
        if strings.Contains(s, absent) {
            t.Errorf("expected no %q section in %q", absent, s)
        }
    }
}

func TestReportIsEmpty(t *testing.T) {
    empty := Report{WebsocketConnections: 5}
    if !empty.IsEmpty() {
        t.Fatalf("expected report with only a gauge to be empty")
    }

    nonEmpty := Report{TotalCalls: 1}
    if nonEmpty.IsEmpty() {
        t.Fatalf("expected report with calls to be non-empty")
    }

    metricsOnly := Report{Metrics: []MetricSnapshot{{Name: "x"}}}
    if metricsOnly.IsEmpty() {
        t.Fatalf("expected report with metrics to be non-empty")
    }
}
