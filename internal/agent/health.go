package agent

import (
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	streamConnected atomic.Bool
	lastReportAt    atomic.Int64
	lastSamples     atomic.Int64
	failures        atomic.Int64
	mode            atomic.Value
}

func NewHealthStatus() *HealthStatus {
	h := &HealthStatus{}
	h.mode.Store("")
	return h
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
}

func (h *HealthStatus) SetMode(mode string) {
	h.mode.Store(mode)
}

// MarkReport records an acknowledged report and clears the failure streak.
func (h *HealthStatus) MarkReport(ts time.Time, samples int) {
	h.lastReportAt.Store(ts.UnixNano())
	h.lastSamples.Store(int64(samples))
	h.failures.Store(0)
}

func (h *HealthStatus) MarkFailure() {
	h.failures.Add(1)
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"stream_connected":     h.streamConnected.Load(),
		"collection_mode":      h.mode.Load(),
		"consecutive_failures": h.failures.Load(),
	}
	if v := h.lastReportAt.Load(); v > 0 {
		out["last_report_at"] = time.Unix(0, v).UTC()
		out["last_report_samples"] = h.lastSamples.Load()
	}
	return out
}
