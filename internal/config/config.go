package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "SYSTEM_INSIGHT_"

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string
	JSON       bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// TLSFiles holds the PEM paths used to build a tls.Config for either side of
// the report transport.
type TLSFiles struct {
	Enabled    bool
	SkipVerify bool
	CAPath     string
	CertPath   string
	KeyPath    string
}

func defaultLog() LogConfig {
	return LogConfig{
		Level:      "info",
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 14,
	}
}

func (l LogConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level %q", l.Level)
	}
	if l.File != "" && l.MaxSizeMB <= 0 {
		return errors.New("log_max_size_mb must be > 0 when log_file is set")
	}
	return nil
}

// ClientConfig returns nil when TLS is disabled.
func (t TLSFiles) ClientConfig() (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: t.SkipVerify}
	if t.CAPath != "" {
		pool, err := loadPool(t.CAPath)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}
	if t.CertPath != "" || t.KeyPath != "" {
		crt, err := t.keyPair()
		if err != nil {
			return nil, err
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

// ServerConfig returns nil when TLS is disabled. A CA path turns on client
// certificate verification.
func (t TLSFiles) ServerConfig() (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}
	crt, err := t.keyPair()
	if err != nil {
		return nil, err
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{crt}}
	if t.CAPath != "" {
		pool, err := loadPool(t.CAPath)
		if err != nil {
			return nil, err
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

func (t TLSFiles) keyPair() (tls.Certificate, error) {
	if t.CertPath == "" || t.KeyPath == "" {
		return tls.Certificate{}, errors.New("both TLS cert and key are required")
	}
	crt, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load TLS cert/key: %w", err)
	}
	return crt, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	caBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errors.New("append CA cert failed")
	}
	return pool, nil
}

// logSection and tlsSection are the file forms of LogConfig and TLSFiles.
// Pointer fields distinguish an absent key from a zero value.
type logSection struct {
	Level      *string `yaml:"log_level"`
	JSON       *bool   `yaml:"log_json"`
	File       *string `yaml:"log_file"`
	MaxSizeMB  *int    `yaml:"log_max_size_mb"`
	MaxBackups *int    `yaml:"log_max_backups"`
	MaxAgeDays *int    `yaml:"log_max_age_days"`
}

type tlsSection struct {
	Enabled    *bool   `yaml:"tls_enabled"`
	SkipVerify *bool   `yaml:"tls_skip_verify"`
	CAPath     *string `yaml:"tls_ca_path"`
	CertPath   *string `yaml:"tls_cert_path"`
	KeyPath    *string `yaml:"tls_key_path"`
}

func (s logSection) apply(l *LogConfig) {
	setString(&l.Level, s.Level)
	setBool(&l.JSON, s.JSON)
	setString(&l.File, s.File)
	setInt(&l.MaxSizeMB, s.MaxSizeMB)
	setInt(&l.MaxBackups, s.MaxBackups)
	setInt(&l.MaxAgeDays, s.MaxAgeDays)
}

func (s tlsSection) apply(t *TLSFiles) {
	setBool(&t.Enabled, s.Enabled)
	setBool(&t.SkipVerify, s.SkipVerify)
	setString(&t.CAPath, s.CAPath)
	setString(&t.CertPath, s.CertPath)
	setString(&t.KeyPath, s.KeyPath)
}

func applyLogEnv(prefix string, l *LogConfig) {
	l.Level = strings.ToLower(env(prefix+"LOG_LEVEL", l.Level))
	l.JSON = envBool(prefix+"LOG_JSON", l.JSON)
	l.File = env(prefix+"LOG_FILE", l.File)
	l.MaxSizeMB = envInt(prefix+"LOG_MAX_SIZE_MB", l.MaxSizeMB)
	l.MaxBackups = envInt(prefix+"LOG_MAX_BACKUPS", l.MaxBackups)
	l.MaxAgeDays = envInt(prefix+"LOG_MAX_AGE_DAYS", l.MaxAgeDays)
}

func applyTLSEnv(prefix string, t *TLSFiles) {
	t.Enabled = envBool(prefix+"TLS_ENABLED", t.Enabled)
	t.SkipVerify = envBool(prefix+"TLS_SKIP_VERIFY", t.SkipVerify)
	t.CAPath = env(prefix+"TLS_CA_PATH", t.CAPath)
	t.CertPath = env(prefix+"TLS_CERT_PATH", t.CertPath)
	t.KeyPath = env(prefix+"TLS_KEY_PATH", t.KeyPath)
}

// readDocument decodes path into out. A missing file or an empty path leaves
// out untouched.
func readDocument(path string, out any) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setMillis(dst *time.Duration, v *int) {
	if v != nil {
		*dst = time.Duration(*v) * time.Millisecond
	}
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

// envDuration accepts Go duration strings ("1500ms", "5s") or a bare number
// of milliseconds, matching the *_ms file keys.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
