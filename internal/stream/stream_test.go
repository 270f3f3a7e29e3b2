package stream

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"system-insight/internal/config"
	"system-insight/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReportEnvelopeRoundTrip(t *testing.T) {
	report := model.MetricsReport{
		HostID:           "h1",
		CollectorVersion: "system_insight_client/test",
		Samples: []model.MetricSample{
			{Name: "system.cpu.core.usage_percent", Value: 12.5, TimestampMs: 1714564800000, Labels: []model.Label{{Key: "core", Value: "cpu0"}}},
		},
	}
	data, err := EncodeEnvelope(NewReportEnvelope(report, time.Unix(1714564800, 0)))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"metrics_report"`)
	assert.Contains(t, string(data), `"timestamp_unix":1714564800`)

	got, err := DecodeReport(data)
	require.NoError(t, err)
	assert.Equal(t, report, got)

	_, err = DecodeAck(data)
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeReport([]byte("not json"))
	assert.Error(t, err)

	ackData, err := EncodeEnvelope(NewAckEnvelope("h1", model.ReportAck{OK: true, Message: "accepted"}, time.Now()))
	require.NoError(t, err)
	_, err = DecodeReport(ackData)
	assert.Error(t, err)

	ack, err := DecodeAck(ackData)
	require.NoError(t, err)
	assert.Equal(t, model.ReportAck{OK: true, Message: "accepted"}, ack)
}

func TestJSONCodec(t *testing.T) {
	c := JSONCodec{}
	assert.Equal(t, "json", c.Name())

	data, err := c.Marshal(&model.ReportAck{OK: true, Message: "accepted"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"message":"accepted"}`, string(data))

	var ack model.ReportAck
	require.NoError(t, c.Unmarshal(data, &ack))
	assert.True(t, ack.OK)
}

func TestGRPCClientDecoratesContext(t *testing.T) {
	c := NewGRPCClient("127.0.0.1:1", nil, "tok", "sess-1", quietLogger())
	md, ok := metadata.FromOutgoingContext(c.decorateContext(context.Background()))
	require.True(t, ok)
	assert.Equal(t, []string{"Bearer tok"}, md.Get(AuthorizationHeader))
	assert.Equal(t, []string{"sess-1"}, md.Get(SessionHeader))

	bare := NewGRPCClient("127.0.0.1:1", nil, "", "", quietLogger())
	_, ok = metadata.FromOutgoingContext(bare.decorateContext(context.Background()))
	assert.False(t, ok)
}

func TestNewSinkFromConfig(t *testing.T) {
	cfg := config.DefaultAgent()

	sink, err := NewSinkFromConfig(cfg, nil, "s", quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &GRPCClient{}, sink)

	cfg.StreamMode = config.StreamModeWebSocket
	sink, err = NewSinkFromConfig(cfg, nil, "s", quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &WebSocketClient{}, sink)
	assert.NoError(t, sink.Close(context.Background()))
}

func TestWebSocketClientDialFailure(t *testing.T) {
	c := NewWebSocketClient("ws://127.0.0.1:1/ws/metrics", "", "", nil, 200*time.Millisecond, 200*time.Millisecond, quietLogger())
	_, err := c.SendReport(context.Background(), model.MetricsReport{HostID: "h1"})
	assert.Error(t, err)
}
