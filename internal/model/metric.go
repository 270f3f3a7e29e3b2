package model

// Label is one key/value pair attached to a sample. Order is preserved on the wire.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MetricSample is one point-in-time value produced by a collection cycle.
type MetricSample struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	TimestampMs int64   `json:"timestamp_ms"`
	Labels      []Label `json:"labels,omitempty"`
}

// MetricsReport is everything one host produced in one collection cycle.
// A newer report from the same host replaces the older one entirely.
type MetricsReport struct {
	HostID           string         `json:"host_id"`
	CollectorVersion string         `json:"collector_version"`
	Samples          []MetricSample `json:"samples"`
}

type ReportAck struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (s MetricSample) Clone() MetricSample {
	out := s
	if s.Labels != nil {
		out.Labels = append([]Label(nil), s.Labels...)
	}
	return out
}

// Clone returns a deep copy that shares no slices with r.
func (r MetricsReport) Clone() MetricsReport {
	out := MetricsReport{HostID: r.HostID, CollectorVersion: r.CollectorVersion}
	if r.Samples != nil {
		out.Samples = make([]MetricSample, len(r.Samples))
		for i, s := range r.Samples {
			out.Samples[i] = s.Clone()
		}
	}
	return out
}
