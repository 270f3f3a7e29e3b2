package collector

import (
	"time"

	"system-insight/internal/system"
)

type softirqTotals [len(softirqCategories)]uint64

func softirqTotalsOf(r system.SoftirqRecord) softirqTotals {
	return softirqTotals{r.HI, r.Timer, r.NetTX, r.NetRX, r.Tasklet, r.Sched, r.RCU}
}

func (t softirqTotals) add(o softirqTotals) softirqTotals {
	for i := range t {
		t[i] += o[i]
	}
	return t
}

// baseline is the previous cycle's counters. Every family has its own
// validity flag: a family that failed to read drops its baseline so the
// next delta is never taken across a gap of unknown length.
type baseline struct {
	at    time.Time
	hasAt bool

	cpu    system.CPUCounters
	hasCPU bool

	cores map[string]system.CPUCounters

	softirq    softirqTotals
	hasSoftirq bool

	net    system.NetCounters
	hasNet bool
}

// elapsedSeconds is the wall-clock interval since the previous cycle, or 0
// when there is none.
func (b *baseline) elapsedSeconds(now time.Time) float64 {
	if !b.hasAt {
		return 0
	}
	return now.Sub(b.at).Seconds()
}

// counterRate is (cur-prev)/seconds. A counter that went backwards was reset
// and yields no rate.
func counterRate(prev, cur uint64, seconds float64) (float64, bool) {
	if seconds <= 0 || cur < prev {
		return 0, false
	}
	return float64(cur-prev) / seconds, true
}
