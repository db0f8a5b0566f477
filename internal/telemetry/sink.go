// internal/telemetry/sink.go
// Sink implementations that deliver a flushed Report somewhere. These are
// adapted from the teacher's alert-notification sinks: same delivery shape
// (log line / retried HTTP POST), repointed at a telemetry report instead of
// a single alert firing.
package telemetry

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "time"

    "go.uber.org/zap"

    "github.com/kestrelgw/appgw/internal/logging"
    "github.com/kestrelgw/appgw/internal/util"
)

// EventSink is an optional capability a Sink may implement to receive raw
// events forwarded immediately by record_event (§4.G) for the two sentinel
// error events, outside the normal flush cadence — forensics, not
// aggregated window data.
type EventSink interface {
    SendEvent(ctx context.Context, name string, jsonData json.RawMessage)
}

// LogSink writes each report as a structured log line. Useful in
// development or deployments with no external telemetry collector.
type LogSink struct {
    Format Format
}

// NewLogSink returns a sink rendering reports in the given format.
func NewLogSink(format Format) *LogSink { return &LogSink{Format: format} }

// Send implements Sink.
func (s *LogSink) Send(_ context.Context, report Report) {
    body, err := Render(s.Format, report)
    if err != nil {
        logging.Logger().Warn("telemetry render failed", zap.Error(err))
        return
    }
    logging.Logger().Info("telemetry flush", zap.String("batchId", report.BatchID), zap.ByteString("report", body))
}

// SendEvent implements EventSink: the raw sentinel event is logged
// immediately, ahead of the next scheduled flush.
func (s *LogSink) SendEvent(_ context.Context, name string, jsonData json.RawMessage) {
    logging.Logger().Info("telemetry event", zap.String("name", name), zap.ByteString("data", jsonData))
}

// WebhookSink posts the rendered report body to a collector URL, retrying
// transient failures with the shared exponential backoff helper.
type WebhookSink struct {
    URL        string
    Format     Format
    Timeout    time.Duration
    MaxRetries int
}

// NewWebhookSink returns a sink with the teacher's defaults (5s timeout, 5
// attempts).
func NewWebhookSink(url string, format Format) *WebhookSink {
    return &WebhookSink{URL: url, Format: format, Timeout: 5 * time.Second, MaxRetries: 5}
}

// Send implements Sink. It offloads the network round trip to a goroutine
// so the aggregator's Flush never blocks on a slow collector.
func (s *WebhookSink) Send(_ context.Context, report Report) {
    if s.URL == "" {
        logging.Sugar().Warn("telemetry webhook sink configured without URL")
        return
    }
    body, err := Render(s.Format, report)
    if err != nil {
        logging.Logger().Warn("telemetry render failed", zap.Error(err))
        return
    }
    go s.post(report.BatchID, body)
}

// SendEvent implements EventSink: the raw sentinel event is posted as its
// own envelope, fired once with no retry — forensics is best-effort and must
// never hold up the caller.
func (s *WebhookSink) SendEvent(_ context.Context, name string, jsonData json.RawMessage) {
    if s.URL == "" {
        return
    }
    envelope, _ := json.Marshal(map[string]any{
        "event": name,
        "data":  jsonData,
    })
    go func() {
        client := &http.Client{Timeout: s.Timeout}
        req, _ := http.NewRequest(http.MethodPost, s.URL, bytes.NewReader(envelope))
        req.Header.Set("Content-Type", "application/json")
        resp, err := client.Do(req)
        if err != nil {
            logging.Logger().Warn("telemetry event post failed", zap.String("name", name), zap.Error(err))
            return
        }
        _ = resp.Body.Close()
    }()
}

func (s *WebhookSink) post(batchID string, body []byte) {
    envelope, _ := json.Marshal(map[string]any{
        "batchId": batchID,
        "report":  json.RawMessage(body),
    })

    client := &http.Client{Timeout: s.Timeout}
    bo := util.NewBackoff()

    for attempt := 1; attempt <= s.MaxRetries; attempt++ {
        ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
        req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(envelope))
        req.Header.Set("Content-Type", "application/json")

        resp, err := client.Do(req)
        cancel()
        if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
            _ = resp.Body.Close()
            return
        }
        if err == nil {
            _ = resp.Body.Close()
        }
        logging.Logger().Warn("telemetry webhook post failed", zap.String("batchId", batchID), zap.Int("attempt", attempt), zap.Error(err))
        if attempt == s.MaxRetries {
            break
        }
        time.Sleep(bo.Next())
    }
}

// MultiSink fans a single report out to every sink in the list.
type MultiSink []Sink

// Send implements Sink.
func (m MultiSink) Send(ctx context.Context, report Report) {
    for _, s := range m {
        s.Send(ctx, report)
    }
}

// SendEvent implements EventSink, forwarding to every member that also
// implements it.
func (m MultiSink) SendEvent(ctx context.Context, name string, jsonData json.RawMessage) {
    for _, s := range m {
        if es, ok := s.(EventSink); ok {
            es.SendEvent(ctx, name, jsonData)
        }
    }
}
