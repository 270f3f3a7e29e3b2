package server

import (
	"sync"

	"system-insight/internal/model"
)

// MetricsRepository keeps the latest report per host. A new report replaces
// the previous one wholesale; nothing expires.
type MetricsRepository struct {
	mu      sync.Mutex
	reports map[string]model.MetricsReport
}

func NewMetricsRepository() *MetricsRepository {
	return &MetricsRepository{reports: make(map[string]model.MetricsReport)}
}

func (r *MetricsRepository) UpdateReport(report model.MetricsReport) {
	stored := report.Clone()
	r.mu.Lock()
	r.reports[stored.HostID] = stored
	r.mu.Unlock()
}

// Snapshot returns deep copies of every stored report in no particular order.
func (r *MetricsRepository) Snapshot() []model.MetricsReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.MetricsReport, 0, len(r.reports))
	for _, report := range r.reports {
		out = append(out, report.Clone())
	}
	return out
}

func (r *MetricsRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}
