package model

type MetricType string

const (
	MetricTypeReport MetricType = "metrics_report"
	MetricTypeAck    MetricType = "report_ack"
)

// Envelope is transport-agnostic framing for stream payloads.
type Envelope struct {
	Type          MetricType `json:"type"`
	HostID        string     `json:"host_id"`
	TimestampUnix int64      `json:"timestamp_unix"`
	Payload       any        `json:"payload"`
}
