package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAgentMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadAgent(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:50052", cfg.Target)
	assert.Equal(t, 5*time.Second, cfg.CollectionInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.UseMmap)
	assert.Equal(t, "/dev/system_insight_cpu_stat", cfg.CPUDevicePath)
	assert.Equal(t, "/dev/system_insight_softirq", cfg.SoftirqDevicePath)
	assert.Equal(t, StreamModeGRPC, cfg.StreamMode)
	assert.NotEmpty(t, cfg.HostID)
}

func TestLoadAgentJSONDocument(t *testing.T) {
	path := writeFile(t, "client.json", `{
  "client": {
    "target": "10.0.0.5:6000",
    "collection_interval_ms": 1500,
    "log_level": "debug",
    "host_id": "node-a",
    "use_mmap": true,
    "mmap_cpu_device_path": "/tmp/cpu",
    "mmap_softirq_device_path": "/tmp/softirq"
  }
}`)

	cfg, err := LoadAgent(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:6000", cfg.Target)
	assert.Equal(t, 1500*time.Millisecond, cfg.CollectionInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "node-a", cfg.HostID)
	assert.True(t, cfg.UseMmap)
	assert.Equal(t, "/tmp/cpu", cfg.CPUDevicePath)
	assert.Equal(t, "/tmp/softirq", cfg.SoftirqDevicePath)
	assert.Equal(t, 5*time.Second, cfg.SendTimeout)
}

func TestLoadAgentEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "client.yaml", "client:\n  host_id: from-file\n  collection_interval_ms: 2000\n")
	t.Setenv("SYSTEM_INSIGHT_HOST_ID", "from-env")
	t.Setenv("SYSTEM_INSIGHT_COLLECTION_INTERVAL", "750ms")
	t.Setenv("SYSTEM_INSIGHT_STREAM_MODE", "WebSocket")

	cfg, err := LoadAgent(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.HostID)
	assert.Equal(t, 750*time.Millisecond, cfg.CollectionInterval)
	assert.Equal(t, StreamModeWebSocket, cfg.StreamMode)
}

func TestLoadAgentRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "zero interval", body: `{"client":{"collection_interval_ms":0}}`},
		{name: "empty host", body: `{"client":{"host_id":""}}`},
		{name: "bad mode", body: `{"client":{"stream_mode":"carrier-pigeon"}}`},
		{name: "bad level", body: `{"client":{"log_level":"loud"}}`},
		{name: "malformed", body: `{"client":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAgent(writeFile(t, "client.json", tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadServerJSONDocument(t *testing.T) {
	path := writeFile(t, "server.json", `{
  "server": {"listen_address": "127.0.0.1:7000", "log_level": "warn"},
  "exporter": {"prometheus_http_port": 9300}
}`)

	cfg, err := LoadServer(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9300, cfg.ExporterPort)
	assert.Equal(t, "0.0.0.0:9300", cfg.ExporterAddr())
	assert.Empty(t, cfg.WSListenAddr)
}

func TestLoadServerDefaultsAndEnv(t *testing.T) {
	t.Setenv("SYSTEM_INSIGHT_EXPORTER_LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("SYSTEM_INSIGHT_SERVER_TOKEN", "s3cret")

	cfg, err := LoadServer("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:50052", cfg.ListenAddr)
	assert.Equal(t, 9102, cfg.ExporterPort)
	assert.Equal(t, "127.0.0.1:0", cfg.ExporterAddr())
	assert.Equal(t, "s3cret", cfg.Token)
}

func TestLoadServerRejectsBadPort(t *testing.T) {
	_, err := LoadServer(writeFile(t, "server.json", `{"exporter":{"prometheus_http_port":70000}}`))
	assert.Error(t, err)
}

func TestTLSDisabledReturnsNil(t *testing.T) {
	client, err := TLSFiles{}.ClientConfig()
	require.NoError(t, err)
	assert.Nil(t, client)

	server, err := TLSFiles{}.ServerConfig()
	require.NoError(t, err)
	assert.Nil(t, server)
}

func TestServerTLSNeedsKeyPair(t *testing.T) {
	_, err := TLSFiles{Enabled: true}.ServerConfig()
	assert.Error(t, err)
}
