package grpcbus

import (
    "encoding/json"
    "testing"
)

func TestJSONCodecMarshalUnmarshalRoundTrip(t *testing.T) {
    c := jsonCodec{}
    req := requestEnvelope{
        ID:           "req-1",
        Callsign:     "devices",
        Method:       "device.name",
        Params:       json.RawMessage(`{"x":1}`),
        AppID:        "app-1",
        ConnectionID: 42,
        RequestID:    7,
    }

    data, err := c.Marshal(req)
    if err != nil {
        t.Fatalf("Marshal: %v", err)
    }

    var decoded requestEnvelope
    if err := c.Unmarshal(data, &decoded); err != nil {
        t.Fatalf("Unmarshal: %v", err)
    }
    if decoded.ID != req.ID || decoded.Callsign != req.Callsign || decoded.Method != req.Method ||
        decoded.AppID != req.AppID || decoded.ConnectionID != req.ConnectionID || decoded.RequestID != req.RequestID ||
        string(decoded.Params) != string(req.Params) {
        t.Fatalf("decoded = %+v, want %+v", decoded, req)
    }
}

func TestJSONCodecName(t *testing.T) {
    if got := (jsonCodec{}).Name(); got != "json" {
        t.Fatalf("Name() = %q, want %q", got, "json")
    }
}

func TestJSONCodecResponseEnvelopeRoundTrip(t *testing.T) {
    c := jsonCodec{}
    resp := responseEnvelope{ID: "req-1", Result: `{"ok":true}`}

    data, err := c.Marshal(resp)
    if err != nil {
        t.Fatalf("Marshal: %v", err)
    }
    var decoded responseEnvelope
    if err := c.Unmarshal(data, &decoded); err != nil {
        t.Fatalf("Unmarshal: %v", err)
    }
    if decoded != resp {
        t.Fatalf("decoded = %+v, want %+v", decoded, resp)
    }
}
