package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const serverEnvPrefix = envPrefix + "SERVER_"

// ServerConfig configures the aggregation server. File keys live under
// "server" and "exporter".
type ServerConfig struct {
	ListenAddr          string
	WSListenAddr        string
	Token               string
	ShutdownTimeout     time.Duration
	ExporterPort        int
	ExporterListenAddr  string
	ExporterConnTimeout time.Duration
	TLS                 TLSFiles
	Log                 LogConfig
}

type serverDocument struct {
	Server   serverSection   `yaml:"server"`
	Exporter exporterSection `yaml:"exporter"`
}

type serverSection struct {
	ListenAddr        *string `yaml:"listen_address"`
	WSListenAddr      *string `yaml:"ws_listen_address"`
	Token             *string `yaml:"token"`
	ShutdownTimeoutMs *int    `yaml:"shutdown_timeout_ms"`

	Log logSection `yaml:",inline"`
	TLS tlsSection `yaml:",inline"`
}

type exporterSection struct {
	Port          *int    `yaml:"prometheus_http_port"`
	ListenAddr    *string `yaml:"listen_address"`
	ConnTimeoutMs *int    `yaml:"conn_timeout_ms"`
}

func DefaultServer() ServerConfig {
	return ServerConfig{
		ListenAddr:          "0.0.0.0:50052",
		ShutdownTimeout:     10 * time.Second,
		ExporterPort:        9102,
		ExporterConnTimeout: 5 * time.Second,
		Log:                 defaultLog(),
	}
}

// LoadServer layers defaults, the optional config file at path and
// SYSTEM_INSIGHT_SERVER_* environment variables, then validates the result.
func LoadServer(path string) (ServerConfig, error) {
	cfg := DefaultServer()

	var doc serverDocument
	if err := readDocument(path, &doc); err != nil {
		return ServerConfig{}, err
	}
	doc.apply(&cfg)
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func (d serverDocument) apply(c *ServerConfig) {
	setString(&c.ListenAddr, d.Server.ListenAddr)
	setString(&c.WSListenAddr, d.Server.WSListenAddr)
	setString(&c.Token, d.Server.Token)
	setMillis(&c.ShutdownTimeout, d.Server.ShutdownTimeoutMs)
	d.Server.Log.apply(&c.Log)
	d.Server.TLS.apply(&c.TLS)

	setInt(&c.ExporterPort, d.Exporter.Port)
	setString(&c.ExporterListenAddr, d.Exporter.ListenAddr)
	setMillis(&c.ExporterConnTimeout, d.Exporter.ConnTimeoutMs)
}

func (c *ServerConfig) applyEnv() {
	c.ListenAddr = env(serverEnvPrefix+"LISTEN_ADDR", c.ListenAddr)
	c.WSListenAddr = env(serverEnvPrefix+"WS_LISTEN_ADDR", c.WSListenAddr)
	c.Token = env(serverEnvPrefix+"TOKEN", c.Token)
	c.ShutdownTimeout = envDuration(serverEnvPrefix+"SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.ExporterPort = envInt(envPrefix+"EXPORTER_PORT", c.ExporterPort)
	c.ExporterListenAddr = env(envPrefix+"EXPORTER_LISTEN_ADDR", c.ExporterListenAddr)
	c.ExporterConnTimeout = envDuration(envPrefix+"EXPORTER_CONN_TIMEOUT", c.ExporterConnTimeout)
	applyLogEnv(serverEnvPrefix, &c.Log)
	applyTLSEnv(serverEnvPrefix, &c.TLS)
}

// ExporterAddr is the exposition listen address. An explicit listen address
// wins over the port, which binds all interfaces.
func (c ServerConfig) ExporterAddr() string {
	if c.ExporterListenAddr != "" {
		return c.ExporterListenAddr
	}
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.ExporterPort))
}

func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("server.listen_address is required")
	}
	if c.ExporterListenAddr == "" && (c.ExporterPort <= 0 || c.ExporterPort > 65535) {
		return fmt.Errorf("exporter.prometheus_http_port %d out of range", c.ExporterPort)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout_ms must be > 0")
	}
	if c.ExporterConnTimeout < 0 {
		return errors.New("exporter.conn_timeout_ms must be >= 0")
	}
	return c.Log.Validate()
}

func (c ServerConfig) TLSConfig() (*tls.Config, error) {
	return c.TLS.ServerConfig()
}
