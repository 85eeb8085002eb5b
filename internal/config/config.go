// Package config maps echoserver and echoclient TOML files onto runtime
// settings. Keys that are absent keep their defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/echoframe/internal/client"
	"github.com/danmuck/echoframe/internal/logging"
	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/danmuck/echoframe/internal/server"
)

// SessionFile holds the session keys shared by both file kinds.
type SessionFile struct {
	SecurityMode      string `toml:"session_security_mode" comment:"development or production (production requires tls)"`
	TLSEnabled        bool   `toml:"session_tls_enabled"`
	TLSMutual         bool   `toml:"session_tls_mutual"`
	TLSCertFile       string `toml:"session_tls_cert_file"`
	TLSKeyFile        string `toml:"session_tls_key_file"`
	TLSCAFile         string `toml:"session_tls_ca_file"`
	ReadBufferSize    int    `toml:"read_buffer_size"`
	MaxPendingBytes   int    `toml:"max_pending_bytes" comment:"pause reads above this many queued bytes, 0 = unbounded"`
	ConnectTimeout    string `toml:"connect_timeout"`
	HandshakeTimeout  string `toml:"handshake_timeout"`
	ReadTimeout       string `toml:"read_timeout" comment:"0s disables the idle timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
	HeartbeatInterval string `toml:"heartbeat_interval" comment:"0s disables heartbeats"`
}

// ServerFile is the echoserver config.toml layout.
type ServerFile struct {
	Addr          string   `toml:"addr"`
	AdminAddr     string   `toml:"admin_addr" comment:"empty disables the admin http surface"`
	AdminToken    string   `toml:"admin_token" comment:"bearer token required on /sessions, empty leaves it open"`
	NodeID        string   `toml:"node_id"`
	Workers       int      `toml:"workers" comment:"GOMAXPROCS override, 0 = runtime default"`
	CORSOrigins   []string `toml:"cors_origins"`
	LogFile       string   `toml:"log_file" comment:"rotating JSON log file next to console output, empty disables"`
	LogMaxSizeMB  int      `toml:"log_max_size_mb" comment:"rotate after this many megabytes"`
	LogMaxBackups int      `toml:"log_max_backups" comment:"rotated files kept"`
	SessionFile
}

// ClientFile is the echoclient config.toml layout.
type ClientFile struct {
	Addr               string `toml:"addr"`
	MaxConnectAttempts int    `toml:"max_connect_attempts" comment:"0 retries until interrupted"`
	TLSServerName      string `toml:"session_tls_server_name"`
	TLSInsecureSkip    bool   `toml:"session_tls_insecure_skip_verify"`
	SessionFile
}

func DefaultServerConfig() server.RunnerConfig {
	return server.RunnerConfig{
		Server: server.Config{
			ListenAddr: server.DefaultListenAddr,
			Session:    session.DefaultConfig(),
		},
		NodeID: "echoserver",
		Log: logging.FileConfig{
			MaxSizeMB:  logging.DefaultLogMaxSizeMB,
			MaxBackups: logging.DefaultLogMaxBackups,
		},
	}
}

func DefaultClientConfig() client.Config {
	return client.DefaultConfig()
}

// LoadServerConfig decodes path over DefaultServerConfig and validates the
// resulting transport policy.
func LoadServerConfig(path string) (server.RunnerConfig, error) {
	cfg := DefaultServerConfig()

	var raw ServerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return server.RunnerConfig{}, fmt.Errorf("load server config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return server.RunnerConfig{}, fmt.Errorf("load server config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Server.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("node_id") {
		cfg.NodeID = strings.TrimSpace(raw.NodeID)
	}
	if meta.IsDefined("workers") {
		if raw.Workers < 0 {
			return server.RunnerConfig{}, fmt.Errorf("load server config: workers must be >= 0, got %d", raw.Workers)
		}
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("log_file") {
		cfg.Log.Path = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("log_max_size_mb") {
		if raw.LogMaxSizeMB <= 0 {
			return server.RunnerConfig{}, fmt.Errorf("load server config: log_max_size_mb must be > 0, got %d", raw.LogMaxSizeMB)
		}
		cfg.Log.MaxSizeMB = raw.LogMaxSizeMB
	}
	if meta.IsDefined("log_max_backups") {
		if raw.LogMaxBackups <= 0 {
			return server.RunnerConfig{}, fmt.Errorf("load server config: log_max_backups must be > 0, got %d", raw.LogMaxBackups)
		}
		cfg.Log.MaxBackups = raw.LogMaxBackups
	}
	if err := overlaySession(meta, raw.SessionFile, &cfg.Server.Session); err != nil {
		return server.RunnerConfig{}, fmt.Errorf("load server config: %w", err)
	}

	if strings.TrimSpace(cfg.Server.ListenAddr) == "" {
		return server.RunnerConfig{}, fmt.Errorf("load server config: addr is required")
	}
	cfg.Server.Session = cfg.Server.Session.WithDefaults()
	if err := cfg.Server.Session.ValidateServerTransport(); err != nil {
		return server.RunnerConfig{}, fmt.Errorf("load server config: %w", err)
	}
	return cfg, nil
}

func LoadClientConfig(path string) (client.Config, error) {
	cfg := DefaultClientConfig()

	var raw ClientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return client.Config{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return client.Config{}, fmt.Errorf("load client config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("session_tls_server_name") {
		cfg.Session.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("session_tls_insecure_skip_verify") {
		cfg.Session.TLS.InsecureSkipVerify = raw.TLSInsecureSkip
	}
	if err := overlaySession(meta, raw.SessionFile, &cfg.Session); err != nil {
		return client.Config{}, fmt.Errorf("load client config: %w", err)
	}

	if strings.TrimSpace(cfg.Address) == "" {
		return client.Config{}, fmt.Errorf("load client config: %w", client.ErrAddressRequired)
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return client.Config{}, fmt.Errorf("load client config: %w", err)
	}
	return cfg, nil
}

func overlaySession(meta toml.MetaData, raw SessionFile, cfg *session.Config) error {
	if meta.IsDefined("session_security_mode") {
		cfg.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("session_tls_enabled") {
		cfg.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("session_tls_mutual") {
		cfg.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("session_tls_cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("session_tls_key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("session_tls_ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("read_buffer_size") {
		if raw.ReadBufferSize <= 0 {
			return fmt.Errorf("read_buffer_size must be > 0, got %d", raw.ReadBufferSize)
		}
		cfg.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("max_pending_bytes") {
		if raw.MaxPendingBytes < 0 {
			return fmt.Errorf("max_pending_bytes must be >= 0, got %d", raw.MaxPendingBytes)
		}
		cfg.MaxPendingBytes = raw.MaxPendingBytes
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"shutdown_timeout", raw.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.HeartbeatInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must not be negative", d.key)
		}
		*d.dst = v
	}
	return nil
}
