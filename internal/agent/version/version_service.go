package version

import (
	"time"

	"system-insight/internal/config"
)

// AgentVersion is overridden at build time with
// -ldflags "-X system-insight/internal/agent/version.AgentVersion=...".
var AgentVersion = "0.3.0"

const collectorName = "system_insight_client"

// CollectorVersion is the collector_version carried by every report.
func CollectorVersion() string {
	return collectorName + "/" + AgentVersion
}

func Get(cfg config.AgentConfig, mode string) Response {
	return Response{
		HostID:           cfg.HostID,
		AgentVersion:     AgentVersion,
		CollectorVersion: CollectorVersion(),
		CollectionMode:   mode,
		StreamMode:       string(cfg.StreamMode),
		ProbeListenAddr:  cfg.ProbeListenAddr,
		CheckedAtUnix:    time.Now().UTC().Unix(),
	}
}
