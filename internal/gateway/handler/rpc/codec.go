package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec lets connect carry plain Go structs. It replaces the default
// protojson codec registered under the same name.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// WithJSONCodec configures a handler or client to speak the JSON codec.
func WithJSONCodec() connect.Option { return connect.WithCodec(jsonCodec{}) }
