// internal/rpcbus/grpcbus/codec.go
// A gRPC codec that marshals with encoding/json instead of protobuf. The
// bus's envelopes are deliberately plain Go structs — the spec treats JSON
// bodies as opaque strings on the hot path (§1 non-goals: "does not
// transform payloads"), so there is no schema to code-generate from in the
// first place. Registering under subtype "json" lets both ends negotiate it
// through the standard gRPC content-type header
// ("application/grpc+json"), keeping google.golang.org/grpc as the real
// transport without requiring protoc-generated messages.
package grpcbus

import (
    "encoding/json"

    "google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
    encoding.RegisterCodec(jsonCodec{})
}
