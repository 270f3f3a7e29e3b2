package version

// Response is what the probe endpoint reports about the running agent.
type Response struct {
	HostID           string `json:"host_id"`
	AgentVersion     string `json:"agent_version"`
	CollectorVersion string `json:"collector_version"`
	CollectionMode   string `json:"collection_mode"`
	StreamMode       string `json:"stream_mode"`
	ProbeListenAddr  string `json:"probe_listen_addr"`
	CheckedAtUnix    int64  `json:"checked_at_unix"`
}
