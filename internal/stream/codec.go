package stream

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const (
	ServiceName       = "systeminsight.proto.SystemInsightService"
	SendMetricsMethod = "/" + ServiceName + "/SendMetrics"
)

// JSONCodec lets both ends exchange the report schema over gRPC without
// generated protobuf types.
type JSONCodec struct{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(JSONCodec{})
}
