package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type StreamMode string

const (
	StreamModeGRPC      StreamMode = "grpc"
	StreamModeWebSocket StreamMode = "websocket"
)

// AgentConfig configures the collecting side. File keys live under "client".
type AgentConfig struct {
	Target             string
	CollectionInterval time.Duration
	HostID             string
	UseMmap            bool
	CPUDevicePath      string
	SoftirqDevicePath  string
	ProcRoot           string
	StreamMode         StreamMode
	WSURL              string
	Token              string
	ProbeListenAddr    string
	SendTimeout        time.Duration
	ErrorBackoffMax    time.Duration
	ShutdownTimeout    time.Duration
	TLS                TLSFiles
	Log                LogConfig
}

type agentDocument struct {
	Client agentSection `yaml:"client"`
}

type agentSection struct {
	Target               *string `yaml:"target"`
	CollectionIntervalMs *int    `yaml:"collection_interval_ms"`
	HostID               *string `yaml:"host_id"`
	UseMmap              *bool   `yaml:"use_mmap"`
	CPUDevicePath        *string `yaml:"mmap_cpu_device_path"`
	SoftirqDevicePath    *string `yaml:"mmap_softirq_device_path"`
	ProcRoot             *string `yaml:"proc_root"`
	StreamMode           *string `yaml:"stream_mode"`
	WSURL                *string `yaml:"ws_url"`
	Token                *string `yaml:"token"`
	ProbeListenAddr      *string `yaml:"probe_listen_address"`
	SendTimeoutMs        *int    `yaml:"send_timeout_ms"`
	ErrorBackoffMaxMs    *int    `yaml:"error_backoff_max_ms"`
	ShutdownTimeoutMs    *int    `yaml:"shutdown_timeout_ms"`

	Log logSection `yaml:",inline"`
	TLS tlsSection `yaml:",inline"`
}

func DefaultAgent() AgentConfig {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-host"
	}
	return AgentConfig{
		Target:             "127.0.0.1:50052",
		CollectionInterval: 5 * time.Second,
		HostID:             hostname,
		CPUDevicePath:      "/dev/system_insight_cpu_stat",
		SoftirqDevicePath:  "/dev/system_insight_softirq",
		ProcRoot:           "/proc",
		StreamMode:         StreamModeGRPC,
		WSURL:              "ws://127.0.0.1:50053/ws/metrics",
		ProbeListenAddr:    "127.0.0.1:7443",
		SendTimeout:        5 * time.Second,
		ErrorBackoffMax:    time.Minute,
		ShutdownTimeout:    10 * time.Second,
		Log:                defaultLog(),
	}
}

// LoadAgent layers defaults, the optional config file at path and
// SYSTEM_INSIGHT_* environment variables, then validates the result.
func LoadAgent(path string) (AgentConfig, error) {
	cfg := DefaultAgent()

	var doc agentDocument
	if err := readDocument(path, &doc); err != nil {
		return AgentConfig{}, err
	}
	doc.Client.apply(&cfg)
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

func (s agentSection) apply(c *AgentConfig) {
	setString(&c.Target, s.Target)
	setMillis(&c.CollectionInterval, s.CollectionIntervalMs)
	setString(&c.HostID, s.HostID)
	setBool(&c.UseMmap, s.UseMmap)
	setString(&c.CPUDevicePath, s.CPUDevicePath)
	setString(&c.SoftirqDevicePath, s.SoftirqDevicePath)
	setString(&c.ProcRoot, s.ProcRoot)
	if s.StreamMode != nil {
		c.StreamMode = StreamMode(strings.ToLower(strings.TrimSpace(*s.StreamMode)))
	}
	setString(&c.WSURL, s.WSURL)
	setString(&c.Token, s.Token)
	setString(&c.ProbeListenAddr, s.ProbeListenAddr)
	setMillis(&c.SendTimeout, s.SendTimeoutMs)
	setMillis(&c.ErrorBackoffMax, s.ErrorBackoffMaxMs)
	setMillis(&c.ShutdownTimeout, s.ShutdownTimeoutMs)
	s.Log.apply(&c.Log)
	s.TLS.apply(&c.TLS)
}

func (c *AgentConfig) applyEnv() {
	c.Target = env(envPrefix+"TARGET", c.Target)
	c.CollectionInterval = envDuration(envPrefix+"COLLECTION_INTERVAL", c.CollectionInterval)
	c.HostID = env(envPrefix+"HOST_ID", c.HostID)
	c.UseMmap = envBool(envPrefix+"USE_MMAP", c.UseMmap)
	c.CPUDevicePath = env(envPrefix+"CPU_DEVICE_PATH", c.CPUDevicePath)
	c.SoftirqDevicePath = env(envPrefix+"SOFTIRQ_DEVICE_PATH", c.SoftirqDevicePath)
	c.ProcRoot = env(envPrefix+"PROC_ROOT", c.ProcRoot)
	c.StreamMode = StreamMode(strings.ToLower(env(envPrefix+"STREAM_MODE", string(c.StreamMode))))
	c.WSURL = env(envPrefix+"WS_URL", c.WSURL)
	c.Token = env(envPrefix+"TOKEN", c.Token)
	c.ProbeListenAddr = env(envPrefix+"PROBE_ADDR", c.ProbeListenAddr)
	c.SendTimeout = envDuration(envPrefix+"SEND_TIMEOUT", c.SendTimeout)
	c.ErrorBackoffMax = envDuration(envPrefix+"ERROR_BACKOFF_MAX", c.ErrorBackoffMax)
	c.ShutdownTimeout = envDuration(envPrefix+"SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	applyLogEnv(envPrefix, &c.Log)
	applyTLSEnv(envPrefix, &c.TLS)
}

func (c AgentConfig) Validate() error {
	if strings.TrimSpace(c.HostID) == "" {
		return errors.New("host_id must not be empty")
	}
	if c.CollectionInterval <= 0 {
		return errors.New("collection_interval_ms must be > 0")
	}
	if c.SendTimeout <= 0 {
		return errors.New("send_timeout_ms must be > 0")
	}
	if c.ErrorBackoffMax <= 0 {
		return errors.New("error_backoff_max_ms must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout_ms must be > 0")
	}
	if c.UseMmap && c.CPUDevicePath == "" {
		return errors.New("mmap_cpu_device_path is required when use_mmap is set")
	}
	switch c.StreamMode {
	case StreamModeGRPC:
		if c.Target == "" {
			return errors.New("target is required for grpc mode")
		}
	case StreamModeWebSocket:
		if c.WSURL == "" {
			return errors.New("ws_url is required for websocket mode")
		}
	default:
		return fmt.Errorf("unsupported stream mode %q", c.StreamMode)
	}
	return c.Log.Validate()
}

func (c AgentConfig) TLSConfig() (*tls.Config, error) {
	return c.TLS.ClientConfig()
}
