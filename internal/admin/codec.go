package admin

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype this package's messages are sent
// under. No protoc step runs in this exercise, so the admin service's wire
// messages are plain Go structs marshaled as JSON rather than
// protoc-gen-go types; grpc-go's pluggable Codec is exactly the seam meant
// for this (content-type becomes "application/grpc+admin-json" on the
// wire).
const codecName = "admin-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
