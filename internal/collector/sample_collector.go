package collector

import (
	"errors"
	"log/slog"
	"time"

	"system-insight/internal/model"
	"system-insight/internal/system"
)

// Mode selects where CPU counters come from. It is fixed when the collector
// is built; loading or unloading the kernel module afterwards is not noticed.
type Mode int

const (
	// ModeFallback reads the textual proc files only.
	ModeFallback Mode = iota
	// ModeShared reads per-CPU records from the kernel module's shared memory.
	ModeShared
)

func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

const (
	DefaultCPUDevicePath     = "/dev/system_insight_cpu_stat"
	DefaultSoftirqDevicePath = "/dev/system_insight_softirq"
)

type Options struct {
	// UseShared asks for ModeShared. The collector still falls back when the
	// CPU device cannot be mapped.
	UseShared         bool
	CPUDevicePath     string
	SoftirqDevicePath string
	ProcRoot          string
	// Now overrides the wall clock, mainly for tests.
	Now func() time.Time
}

// SampleCollector turns cumulative host counters into usage percentages and
// per-second rates. It keeps the previous cycle's counters as its baseline,
// so exactly one goroutine may call Collect on a given instance.
type SampleCollector struct {
	logger  *slog.Logger
	mode    Mode
	proc    system.ProcFS
	cpu     *system.SharedCounterReader
	softirq *system.SharedCounterReader
	now     func() time.Time
	base    baseline
}

func NewSampleCollector(opts Options, logger *slog.Logger) *SampleCollector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &SampleCollector{
		logger: logger,
		mode:   ModeFallback,
		proc:   system.NewProcFS(opts.ProcRoot),
		now:    opts.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.UseShared {
		c.probeShared(opts)
	}
	logger.Info("sample collector ready", "mode", c.mode.String(), "proc_root", c.proc.Root, "softirq", c.softirq != nil)
	return c
}

func (c *SampleCollector) probeShared(opts Options) {
	cpuPath := opts.CPUDevicePath
	if cpuPath == "" {
		cpuPath = DefaultCPUDevicePath
	}
	cpu, err := system.OpenSharedCounters(cpuPath, system.MaxCPUs, system.CPURecordSize)
	if err != nil {
		c.logger.Warn("shared cpu counters unavailable, falling back to proc files", "device", cpuPath, "error", err)
		return
	}
	c.cpu = cpu
	c.mode = ModeShared

	if opts.SoftirqDevicePath == "" {
		return
	}
	softirq, err := system.OpenSharedCounters(opts.SoftirqDevicePath, system.MaxCPUs, system.SoftirqRecordSize)
	if err != nil {
		c.logger.Warn("shared softirq counters unavailable, softirq rates disabled", "device", opts.SoftirqDevicePath, "error", err)
		return
	}
	c.softirq = softirq
}

func (c *SampleCollector) Mode() Mode { return c.mode }

// Close releases the shared memory mappings, if any.
func (c *SampleCollector) Close() error {
	return errors.Join(c.cpu.Close(), c.softirq.Close())
}

// Collect runs one cycle. Samples that need a baseline are omitted on the
// first cycle and whenever a counter went backwards; the baseline is
// refreshed either way. A cycle always runs to completion.
func (c *SampleCollector) Collect() []model.MetricSample {
	now := c.now()
	elapsed := c.base.elapsedSeconds(now)
	samples := make([]model.MetricSample, 0, 16)

	var records []system.CPURecord
	if c.mode == ModeShared {
		records = c.readCPURecords()
	}

	samples = c.collectCPUUsage(samples, records)
	if c.mode == ModeShared {
		samples = c.collectCoreUsage(samples, records)
		samples = c.collectSoftirq(samples, elapsed)
	}
	samples = c.collectMemory(samples)
	samples = c.collectNetwork(samples, elapsed)

	c.base.at = now
	c.base.hasAt = true
	return samples
}

func (c *SampleCollector) collectCPUUsage(samples []model.MetricSample, records []system.CPURecord) []model.MetricSample {
	var (
		cur system.CPUCounters
		ok  bool
	)
	if c.mode == ModeShared {
		cur, ok = sumCPU(records)
	} else {
		var err error
		cur, err = c.proc.ReadCPUCounters()
		if err != nil {
			c.logger.Warn("read cpu counters failed", "error", err)
		}
		ok = err == nil
	}
	if !ok {
		c.base.hasCPU = false
		return samples
	}

	if c.base.hasCPU {
		if usage, valid := system.CPUUsage(c.base.cpu, cur); valid {
			samples = append(samples, c.sample(MetricCPUUsage, usage))
		}
	}
	c.base.cpu = cur
	c.base.hasCPU = true
	return samples
}

func (c *SampleCollector) collectCoreUsage(samples []model.MetricSample, records []system.CPURecord) []model.MetricSample {
	cores := make(map[string]system.CPUCounters, len(records))
	for _, rec := range records {
		if rec.IsAggregate() {
			continue
		}
		cur := rec.Counters()
		cores[rec.Name] = cur

		prev, ok := c.base.cores[rec.Name]
		if !ok {
			continue
		}
		if usage, valid := system.CoreUsage(prev, cur); valid {
			samples = append(samples, c.sample(MetricCoreUsage, usage, model.Label{Key: LabelCore, Value: rec.Name}))
		}
	}
	c.base.cores = cores
	return samples
}

func (c *SampleCollector) collectSoftirq(samples []model.MetricSample, elapsed float64) []model.MetricSample {
	if c.softirq == nil {
		return samples
	}
	cur, ok := c.readSoftirqTotals()
	if !ok {
		c.base.hasSoftirq = false
		return samples
	}

	if c.base.hasSoftirq && elapsed > 0 {
		for i, category := range softirqCategories {
			prev := c.base.softirq[i]
			if cur[i] <= prev {
				continue
			}
			if rate, valid := counterRate(prev, cur[i], elapsed); valid {
				samples = append(samples, c.sample(SoftirqMetricName(category), rate))
			}
		}
	}
	c.base.softirq = cur
	c.base.hasSoftirq = true
	return samples
}

func (c *SampleCollector) collectMemory(samples []model.MetricSample) []model.MetricSample {
	mem, err := c.proc.ReadMemoryInfo()
	if err != nil {
		c.logger.Warn("read memory info failed", "error", err)
		return samples
	}
	if mem.TotalKB == 0 {
		return samples
	}
	samples = append(samples, c.sample(MetricMemUsage, mem.UsagePercent()))
	samples = append(samples, c.sample(MetricMemAvailable, mem.AvailableBytes()))
	return samples
}

func (c *SampleCollector) collectNetwork(samples []model.MetricSample, elapsed float64) []model.MetricSample {
	cur, err := c.proc.ReadNetCounters()
	if err != nil {
		c.logger.Warn("read network counters failed", "error", err)
		c.base.hasNet = false
		return samples
	}

	if c.base.hasNet && elapsed > 0 {
		if rate, ok := counterRate(c.base.net.RxBytes, cur.RxBytes, elapsed); ok {
			samples = append(samples, c.sample(MetricNetRxRate, rate))
		}
		if rate, ok := counterRate(c.base.net.TxBytes, cur.TxBytes, elapsed); ok {
			samples = append(samples, c.sample(MetricNetTxRate, rate))
		}
	}
	c.base.net = cur
	c.base.hasNet = true
	return samples
}

func (c *SampleCollector) sample(name string, value float64, labels ...model.Label) model.MetricSample {
	return model.MetricSample{
		Name:        name,
		Value:       value,
		TimestampMs: c.now().UnixMilli(),
		Labels:      labels,
	}
}

// readCPURecords decodes the valid rows of the CPU device. An empty device is
// taken as a stale mapping and re-mapped once.
func (c *SampleCollector) readCPURecords() []system.CPURecord {
	if c.cpu.ValidCount() == 0 {
		if err := c.cpu.Refresh(); err != nil {
			c.logger.Warn("refresh shared cpu counters failed", "device", c.cpu.Path(), "error", err)
			return nil
		}
	}
	out := make([]system.CPURecord, 0, c.cpu.ValidCount())
	for i := 0; i < c.cpu.ValidCount(); i++ {
		raw, err := c.cpu.Record(i)
		if err != nil {
			c.logger.Debug("skip cpu record", "index", i, "error", err)
			continue
		}
		if system.IsSentinel(raw) {
			break
		}
		rec, err := system.DecodeCPURecord(raw)
		if err != nil {
			c.logger.Debug("skip cpu record", "index", i, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (c *SampleCollector) readSoftirqTotals() (softirqTotals, bool) {
	var units, aggregate softirqTotals
	var haveUnits, haveAggregate bool
	for i := 0; i < c.softirq.ValidCount(); i++ {
		raw, err := c.softirq.Record(i)
		if err != nil {
			continue
		}
		if system.IsSentinel(raw) {
			break
		}
		rec, err := system.DecodeSoftirqRecord(raw)
		if err != nil {
			c.logger.Debug("skip softirq record", "index", i, "error", err)
			continue
		}
		if rec.IsAggregate() {
			aggregate = aggregate.add(softirqTotalsOf(rec))
			haveAggregate = true
			continue
		}
		units = units.add(softirqTotalsOf(rec))
		haveUnits = true
	}
	switch {
	case haveUnits:
		return units, true
	case haveAggregate:
		return aggregate, true
	default:
		return softirqTotals{}, false
	}
}

// sumCPU adds up the per-unit rows. Devices that only publish the aggregate
// row are summed from that row instead.
func sumCPU(records []system.CPURecord) (system.CPUCounters, bool) {
	var units, aggregate system.CPUCounters
	var haveUnits, haveAggregate bool
	for _, rec := range records {
		if rec.IsAggregate() {
			aggregate = aggregate.Add(rec.Counters())
			haveAggregate = true
			continue
		}
		units = units.Add(rec.Counters())
		haveUnits = true
	}
	switch {
	case haveUnits:
		return units, true
	case haveAggregate:
		return aggregate, true
	default:
		return system.CPUCounters{}, false
	}
}
