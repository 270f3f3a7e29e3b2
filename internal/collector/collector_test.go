package collector

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"system-insight/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func writeProc(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func writeStat(t *testing.T, root string, user, system, idle uint64) {
	writeProc(t, root, "stat", fmt.Sprintf("cpu  %d 0 %d %d 0 0 0 0 0 0\ncpu0 1 1 1 1 0 0 0 0 0 0\n", user, system, idle))
}

func writeNetDev(t *testing.T, root string, rx, tx uint64) {
	writeProc(t, root, "net/dev", fmt.Sprintf(`Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo: 9999      10    0    0    0     0          0         0     9999      10    0    0    0     0       0          0
  eth0: %d      10    0    0    0     0          0         0     %d      20    0    0    0     0       0          0
`, rx, tx))
}

func writeMeminfo(t *testing.T, root string) {
	writeProc(t, root, "meminfo", "MemTotal:       1000 kB\nMemFree:         100 kB\nMemAvailable:    250 kB\n")
}

func byName(samples []model.MetricSample) map[string]model.MetricSample {
	out := make(map[string]model.MetricSample, len(samples))
	for _, s := range samples {
		key := s.Name
		for _, l := range s.Labels {
			key += "," + l.Key + "=" + l.Value
		}
		out[key] = s
	}
	return out
}

func names(samples []model.MetricSample) []string {
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.Name)
	}
	return out
}

func TestFallbackFirstCycleHasNoDeltas(t *testing.T) {
	root := t.TempDir()
	writeStat(t, root, 100, 100, 800)
	writeMeminfo(t, root)
	writeNetDev(t, root, 1000, 2000)
	clock := newClock()

	c := NewSampleCollector(Options{ProcRoot: root, Now: clock.Now}, discardLogger())
	t.Cleanup(func() { _ = c.Close() })
	assert.Equal(t, ModeFallback, c.Mode())

	samples := c.Collect()
	assert.Equal(t, []string{MetricMemUsage, MetricMemAvailable}, names(samples))

	got := byName(samples)
	assert.InDelta(t, 75.0, got[MetricMemUsage].Value, 1e-9)
	assert.InDelta(t, 256000.0, got[MetricMemAvailable].Value, 1e-9)
	assert.Equal(t, clock.now.UnixMilli(), got[MetricMemUsage].TimestampMs)
}

func TestFallbackSecondCycleComputesDeltas(t *testing.T) {
	root := t.TempDir()
	writeStat(t, root, 100, 100, 800)
	writeMeminfo(t, root)
	writeNetDev(t, root, 1000, 2000)
	clock := newClock()

	c := NewSampleCollector(Options{ProcRoot: root, Now: clock.Now}, discardLogger())
	t.Cleanup(func() { _ = c.Close() })
	c.Collect()

	clock.Advance(2 * time.Second)
	writeStat(t, root, 200, 200, 1600)
	writeNetDev(t, root, 3000, 6000)

	samples := c.Collect()
	assert.Equal(t, []string{
		MetricCPUUsage,
		MetricMemUsage,
		MetricMemAvailable,
		MetricNetRxRate,
		MetricNetTxRate,
	}, names(samples))

	got := byName(samples)
	assert.InDelta(t, 20.0, got[MetricCPUUsage].Value, 1e-9)
	assert.InDelta(t, 1000.0, got[MetricNetRxRate].Value, 1e-9)
	assert.InDelta(t, 2000.0, got[MetricNetTxRate].Value, 1e-9)
	for _, s := range samples {
		assert.Empty(t, s.Labels)
		assert.Equal(t, clock.now.UnixMilli(), s.TimestampMs)
	}
}

func TestFallbackCounterResetIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeStat(t, root, 100, 100, 800)
	writeMeminfo(t, root)
	writeNetDev(t, root, 5000, 2000)
	clock := newClock()

	c := NewSampleCollector(Options{ProcRoot: root, Now: clock.Now}, discardLogger())
	t.Cleanup(func() { _ = c.Close() })
	c.Collect()

	clock.Advance(time.Second)
	writeStat(t, root, 50, 50, 400)
	writeNetDev(t, root, 100, 2500)

	got := byName(c.Collect())
	assert.NotContains(t, got, MetricCPUUsage)
	assert.NotContains(t, got, MetricNetRxRate)
	require.Contains(t, got, MetricNetTxRate)
	assert.InDelta(t, 500.0, got[MetricNetTxRate].Value, 1e-9)

	// The reset values became the new baseline.
	clock.Advance(time.Second)
	writeStat(t, root, 100, 50, 450)
	writeNetDev(t, root, 600, 2500)

	got = byName(c.Collect())
	require.Contains(t, got, MetricCPUUsage)
	assert.InDelta(t, 50.0, got[MetricCPUUsage].Value, 1e-9)
	assert.InDelta(t, 500.0, got[MetricNetRxRate].Value, 1e-9)
	assert.InDelta(t, 0.0, got[MetricNetTxRate].Value, 1e-9)
}

func TestFallbackMissingSourcesStillReturnOthers(t *testing.T) {
	root := t.TempDir()
	writeMeminfo(t, root)
	clock := newClock()

	c := NewSampleCollector(Options{ProcRoot: root, Now: clock.Now}, discardLogger())
	t.Cleanup(func() { _ = c.Close() })

	c.Collect()
	clock.Advance(time.Second)
	assert.Equal(t, []string{MetricMemUsage, MetricMemAvailable}, names(c.Collect()))
}

func TestUseSharedWithoutDeviceFallsBack(t *testing.T) {
	root := t.TempDir()
	writeMeminfo(t, root)

	c := NewSampleCollector(Options{
		UseShared:     true,
		CPUDevicePath: filepath.Join(root, "no-such-device"),
		ProcRoot:      root,
	}, discardLogger())
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, ModeFallback, c.Mode())
	assert.Equal(t, "fallback", c.Mode().String())
}

func TestSoftirqMetricName(t *testing.T) {
	assert.Equal(t, "system.softirq.net_rx_per_sec", SoftirqMetricName("net_rx"))
}

func TestCounterRate(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur uint64
		seconds   float64
		want      float64
		ok        bool
	}{
		{name: "increase", prev: 100, cur: 300, seconds: 2, want: 100, ok: true},
		{name: "unchanged", prev: 100, cur: 100, seconds: 2, want: 0, ok: true},
		{name: "reset", prev: 300, cur: 100, seconds: 2, ok: false},
		{name: "no interval", prev: 100, cur: 300, seconds: 0, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := counterRate(tt.prev, tt.cur, tt.seconds)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
