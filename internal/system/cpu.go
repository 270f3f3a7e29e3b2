package system

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// CPUCounters holds cumulative CPU ticks. Total covers the eight fields from
// user to steal; guest time is already accounted inside user and nice.
type CPUCounters struct {
	User    uint64
	Nice    uint64
	System  uint64
	Idle    uint64
	IOWait  uint64
	IRQ     uint64
	SoftIRQ uint64
	Steal   uint64
	Total   uint64
}

func (c CPUCounters) sum() uint64 {
	return c.User + c.Nice + c.System + c.Idle + c.IOWait + c.IRQ + c.SoftIRQ + c.Steal
}

// IdleAll is idle plus iowait.
func (c CPUCounters) IdleAll() uint64 {
	return c.Idle + c.IOWait
}

func (c CPUCounters) Busy() uint64 {
	return c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
}

// Add accumulates o into c.
func (c CPUCounters) Add(o CPUCounters) CPUCounters {
	c.User += o.User
	c.Nice += o.Nice
	c.System += o.System
	c.Idle += o.Idle
	c.IOWait += o.IOWait
	c.IRQ += o.IRQ
	c.SoftIRQ += o.SoftIRQ
	c.Steal += o.Steal
	c.Total += o.Total
	return c
}

// ReadCPUCounters parses the aggregate line, which is the first line of stat.
func (p ProcFS) ReadCPUCounters() (CPUCounters, error) {
	f, err := p.open("stat")
	if err != nil {
		return CPUCounters{}, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return CPUCounters{}, fmt.Errorf("scan %s: %w", p.path("stat"), err)
		}
		return CPUCounters{}, fmt.Errorf("%w: %s is empty", ErrMalformedRecord, p.path("stat"))
	}
	return ParseCPULine(s.Text())
}

// ParseCPULine parses "cpu user nice system idle iowait irq softirq steal ...".
// Missing trailing fields (old kernels stop after softirq) count as zero.
func ParseCPULine(line string) (CPUCounters, error) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) < 8 || !strings.HasPrefix(parts[0], "cpu") {
		return CPUCounters{}, fmt.Errorf("%w: unexpected cpu line: %q", ErrMalformedRecord, line)
	}
	var vals [8]uint64
	for i := range vals {
		if i+1 >= len(parts) {
			break
		}
		v, convErr := strconv.ParseUint(parts[i+1], 10, 64)
		if convErr != nil {
			return CPUCounters{}, fmt.Errorf("%w: parse cpu stat %q: %v", ErrMalformedRecord, parts[i+1], convErr)
		}
		vals[i] = v
	}
	c := CPUCounters{
		User:    vals[0],
		Nice:    vals[1],
		System:  vals[2],
		Idle:    vals[3],
		IOWait:  vals[4],
		IRQ:     vals[5],
		SoftIRQ: vals[6],
		Steal:   vals[7],
	}
	c.Total = c.sum()
	return c, nil
}

// CPUUsage returns the busy share of the interval between prev and cur.
// ok is false when the interval holds no ticks or a counter went backwards.
func CPUUsage(prev, cur CPUCounters) (usage float64, ok bool) {
	if cur.Total <= prev.Total || cur.IdleAll() < prev.IdleAll() {
		return 0, false
	}
	totalDelta := float64(cur.Total - prev.Total)
	idleDelta := float64(cur.IdleAll() - prev.IdleAll())
	return ClampPercent((totalDelta - idleDelta) / totalDelta * 100), true
}

// CoreUsage is CPUUsage computed from busy ticks, as used for per-core rows.
func CoreUsage(prev, cur CPUCounters) (usage float64, ok bool) {
	if cur.Total <= prev.Total || cur.Busy() < prev.Busy() {
		return 0, false
	}
	totalDelta := float64(cur.Total - prev.Total)
	busyDelta := float64(cur.Busy() - prev.Busy())
	return ClampPercent(busyDelta / totalDelta * 100), true
}

func ClampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
