package exporter

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"system-insight/internal/model"
)

// ContentType is the exposition text format version served to scrapers.
const ContentType = "text/plain; version=0.0.4"

const fallbackMetricName = "metric"

// SanitizeMetricName maps every byte outside [A-Za-z0-9_] to an underscore.
// An empty name becomes "metric".
func SanitizeMetricName(name string) string {
	if name == "" {
		return fallbackMetricName
	}
	out := []byte(name)
	for i, ch := range out {
		if !isNameByte(ch) {
			out[i] = '_'
		}
	}
	return string(out)
}

func isNameByte(ch byte) bool {
	return ch == '_' ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9')
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// EscapeLabelValue escapes backslash, double quote and newline.
func EscapeLabelValue(value string) string {
	return labelEscaper.Replace(value)
}

// FormatValue uses the shortest representation that round-trips.
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, +1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

// Render writes one line per sample of every report:
//
//	name{host="h",key="value"} 1.5 1714564800000
//
// The timestamp is left out when it is not positive.
func Render(reports []model.MetricsReport) []byte {
	var buf bytes.Buffer
	for _, report := range reports {
		host := EscapeLabelValue(report.HostID)
		for _, sample := range report.Samples {
			buf.WriteString(SanitizeMetricName(sample.Name))
			buf.WriteString(`{host="`)
			buf.WriteString(host)
			buf.WriteByte('"')
			for _, label := range sample.Labels {
				buf.WriteByte(',')
				buf.WriteString(SanitizeMetricName(label.Key))
				buf.WriteString(`="`)
				buf.WriteString(EscapeLabelValue(label.Value))
				buf.WriteByte('"')
			}
			buf.WriteString("} ")
			buf.WriteString(FormatValue(sample.Value))
			if sample.TimestampMs > 0 {
				buf.WriteByte(' ')
				buf.WriteString(strconv.FormatInt(sample.TimestampMs, 10))
			}
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}
