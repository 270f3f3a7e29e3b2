package collector

const (
	MetricCPUUsage      = "system.cpu.usage_percent"
	MetricCoreUsage     = "system.cpu.core.usage_percent"
	MetricMemUsage      = "system.mem.usage_percent"
	MetricMemAvailable  = "system.mem.available_bytes"
	MetricNetRxRate     = "system.net.rx_bytes_per_sec"
	MetricNetTxRate     = "system.net.tx_bytes_per_sec"
	softirqMetricPrefix = "system.softirq."
	softirqMetricSuffix = "_per_sec"

	LabelCore = "core"
)

// softirqCategories lists the categories exported as rates, in emission order.
var softirqCategories = [...]string{"hi", "timer", "net_tx", "net_rx", "tasklet", "sched", "rcu"}

// SoftirqMetricName returns the rate metric for one softirq category.
func SoftirqMetricName(category string) string {
	return softirqMetricPrefix + category + softirqMetricSuffix
}
