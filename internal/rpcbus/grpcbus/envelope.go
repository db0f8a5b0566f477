// internal/rpcbus/grpcbus/envelope.go
// Wire envelopes exchanged over the bidirectional Dispatch stream. Bodies
// stay opaque JSON strings per the spec's non-goals; only routing/
// correlation fields are structured.
package grpcbus

import "encoding/json"

// requestEnvelope is sent client (gateway) -> server (host framework bus).
type requestEnvelope struct {
    ID           string          `json:"id"`
    Callsign     string          `json:"callsign"`
    Method       string          `json:"method"`
    Params       json.RawMessage `json:"params"`
    AppID        string          `json:"appId"`
    ConnectionID uint32          `json:"connectionId"`
    RequestID    uint32          `json:"requestId"`
}

// responseEnvelope is sent server -> client, correlated by ID.
type responseEnvelope struct {
    ID           string `json:"id"`
    Result       string `json:"result,omitempty"`
    ErrorCode    int    `json:"errorCode,omitempty"`
    ErrorMessage string `json:"errorMessage,omitempty"`
}
