package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"system-insight/internal/model"
)

// ReportFrame is the inbound shape of an envelope; the payload is decoded
// once the type is known.
type ReportFrame struct {
	Type          model.MetricType `json:"type"`
	HostID        string           `json:"host_id"`
	TimestampUnix int64            `json:"timestamp_unix"`
	Payload       json.RawMessage  `json:"payload"`
}

func NewReportEnvelope(report model.MetricsReport, at time.Time) model.Envelope {
	return model.Envelope{
		Type:          model.MetricTypeReport,
		HostID:        report.HostID,
		TimestampUnix: at.UTC().Unix(),
		Payload:       report,
	}
}

func NewAckEnvelope(hostID string, ack model.ReportAck, at time.Time) model.Envelope {
	return model.Envelope{
		Type:          model.MetricTypeAck,
		HostID:        hostID,
		TimestampUnix: at.UTC().Unix(),
		Payload:       ack,
	}
}

func EncodeEnvelope(e model.Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func DecodeReport(data []byte) (model.MetricsReport, error) {
	var frame ReportFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return model.MetricsReport{}, fmt.Errorf("decode envelope: %w", err)
	}
	if frame.Type != model.MetricTypeReport {
		return model.MetricsReport{}, fmt.Errorf("unexpected envelope type %q", frame.Type)
	}
	var report model.MetricsReport
	if err := json.Unmarshal(frame.Payload, &report); err != nil {
		return model.MetricsReport{}, fmt.Errorf("decode report payload: %w", err)
	}
	return report, nil
}

func DecodeAck(data []byte) (model.ReportAck, error) {
	var frame ReportFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return model.ReportAck{}, fmt.Errorf("decode envelope: %w", err)
	}
	if frame.Type != model.MetricTypeAck {
		return model.ReportAck{}, fmt.Errorf("unexpected envelope type %q", frame.Type)
	}
	var ack model.ReportAck
	if err := json.Unmarshal(frame.Payload, &ack); err != nil {
		return model.ReportAck{}, fmt.Errorf("decode ack payload: %w", err)
	}
	return ack, nil
}
